package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/rdrealty-lms/internal/metrics"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SystemOperator 批处理任务的操作人
const SystemOperator = "system"

const depreciationBatchSize = 100

var two = decimal.NewFromInt(2)

// DepreciationResult 一次折旧计提的结果
type DepreciationResult struct {
	AsOf    time.Time       `json:"as_of"`
	Assets  int             `json:"assets"`
	Entries int             `json:"entries"`
	Amount  decimal.Decimal `json:"amount"`
	Failed  []string        `json:"failed,omitempty"`
}

// DepreciationService 折旧计提服务
type DepreciationService interface {
	Run(ctx context.Context, asOf time.Time) (*DepreciationResult, error)
}

type depreciationService struct {
	effects
	db *gorm.DB
}

// NewDepreciationService 创建折旧计提服务
func NewDepreciationService(db *gorm.DB, auditLogSvc AuditLogService, invalidator Invalidator, logger *logrus.Logger) DepreciationService {
	return &depreciationService{
		effects: newEffects(auditLogSvc, invalidator, logger),
		db:      db,
	}
}

// MonthlyDepreciation 计算资产的月折旧额
// 直线法: (原值 - 残值) / 使用月数; 双倍余额递减法: 账面价值 * 2 / 使用月数
func MonthlyDepreciation(asset *model.AssetModel) decimal.Decimal {
	if asset.UsefulLifeMonths <= 0 {
		return decimal.Zero
	}
	life := decimal.NewFromInt(int64(asset.UsefulLifeMonths))
	switch asset.DepreciationMethod {
	case model.DepreciationDecliningBalance:
		return asset.BookValue.Mul(two).Div(life).Round(2)
	default:
		return asset.PurchaseCost.Sub(asset.SalvageValue).Div(life).Round(2)
	}
}

// Run 对到期资产逐个计提, 单个资产失败不影响其他资产
func (s *depreciationService) Run(ctx context.Context, asOf time.Time) (*DepreciationResult, error) {
	result := &DepreciationResult{AsOf: asOf, Amount: decimal.Zero}
	attempted := make(map[string]bool)
	units := make(map[string]bool)
	repo := repository.NewAssetRepository(s.db)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		due, err := repo.FindDueForDepreciation(ctx, asOf, depreciationBatchSize+len(attempted))
		if err != nil {
			return result, fmt.Errorf("failed to load assets due for depreciation: %w", err)
		}

		progressed := false
		for _, asset := range due {
			if attempted[asset.ID] {
				continue
			}
			attempted[asset.ID] = true
			progressed = true

			entries, amount, err := s.depreciate(ctx, asset.ID, asOf)
			if err != nil {
				result.Failed = append(result.Failed, asset.ID)
				s.logger.WithError(err).WithField("asset_id", asset.ID).Error("failed to depreciate asset")
				continue
			}
			if entries > 0 {
				result.Assets++
				result.Entries += entries
				result.Amount = result.Amount.Add(amount)
				units[asset.BusinessUnitID] = true
			}
		}
		if !progressed {
			break
		}
	}

	metrics.RecordDepreciationEntries(result.Entries)
	s.logger.WithFields(logrus.Fields{
		"as_of":   asOf.Format("2006-01-02"),
		"assets":  result.Assets,
		"entries": result.Entries,
		"amount":  result.Amount.StringFixed(2),
		"failed":  len(result.Failed),
	}).Info("depreciation run finished")

	if result.Entries > 0 {
		s.record(ctx, SystemOperator, "depreciate", EntityAsset, asOf.Format("2006-01-02"), result)
		ids := make([]string, 0, len(units))
		for bu := range units {
			ids = append(ids, bu)
		}
		s.invalidate(ctx, ids...)
	}
	return result, nil
}

// depreciate 在单个事务内补提该资产截至 asOf 的全部月份
func (s *depreciationService) depreciate(ctx context.Context, assetID string, asOf time.Time) (int, decimal.Decimal, error) {
	var (
		entries int
		total   = decimal.Zero
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assetRepo := repository.NewAssetRepository(tx)
		asset, err := assetRepo.FindByID(ctx, assetID)
		if err != nil {
			return err
		}
		if asset.IsFullyDepreciated || asset.NextDepreciationDate == nil || asset.UsefulLifeMonths <= 0 {
			return nil
		}

		book := asset.BookValue
		accumulated := asset.AccumulatedDepreciation
		next := *asset.NextDepreciationDate
		anchorDay := next.Day()
		if asset.DepreciationStartDate != nil {
			anchorDay = asset.DepreciationStartDate.Day()
		}
		var (
			last      *time.Time
			monthly   = asset.MonthlyDepreciation
			fully     bool
			histories []*model.AssetHistoryModel
		)

		for !next.After(asOf) {
			remaining := book.Sub(asset.SalvageValue)
			if !remaining.IsPositive() {
				fully = true
				break
			}

			snapshot := *asset
			snapshot.BookValue = book
			amount := MonthlyDepreciation(&snapshot)
			if asset.DepreciationStartDate != nil && monthsBetween(*asset.DepreciationStartDate, next) >= asset.UsefulLifeMonths {
				// 使用期最后一个月计提至残值
				amount = remaining
			}
			if amount.GreaterThan(remaining) {
				amount = remaining
			}
			if !amount.IsPositive() {
				fully = true
				break
			}

			book = book.Sub(amount)
			accumulated = accumulated.Add(amount)
			monthly = amount
			total = total.Add(amount)
			entries++

			period := next
			last = &period
			histories = append(histories, &model.AssetHistoryModel{
				ID:          uuid.New().String(),
				AssetID:     asset.ID,
				Action:      model.HistoryDepreciated,
				FromStatus:  asset.Status,
				ToStatus:    asset.Status,
				PerformedBy: SystemOperator,
				Amount:      decimal.NewNullDecimal(amount),
				Notes:       "period " + period.Format("2006-01"),
				CreatedAt:   time.Now(),
			})

			next = nextPeriod(next, anchorDay)
			if !book.GreaterThan(asset.SalvageValue) {
				fully = true
				break
			}
		}

		if entries == 0 && !fully {
			return nil
		}

		updates := map[string]interface{}{
			"book_value":               book,
			"accumulated_depreciation": accumulated,
			"monthly_depreciation":     monthly,
			"is_fully_depreciated":     fully,
		}
		if last != nil {
			updates["last_depreciation_date"] = *last
		}
		if fully {
			updates["next_depreciation_date"] = nil
		} else {
			updates["next_depreciation_date"] = next
		}

		rows, err := assetRepo.UpdateWithVersion(ctx, asset.ID, asset.Version, updates)
		if err != nil {
			return fmt.Errorf("failed to update asset: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: asset %s", ErrConflict, asset.ID)
		}
		return repository.NewAssetHistoryRepository(tx).Save(ctx, histories...)
	})
	if err != nil {
		return 0, decimal.Zero, err
	}
	return entries, total, nil
}

// monthsBetween 两个日期之间相差的自然月数
func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
}

// nextPeriod 推进一个自然月并保持锚定日, 目标月天数不足时取月末
func nextPeriod(t time.Time, anchorDay int) time.Time {
	y, m, _ := t.Date()
	first := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := anchorDay
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
