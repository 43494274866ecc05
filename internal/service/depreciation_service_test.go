package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/service"
	"github.com/mautops/rdrealty-lms/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDepreciation_StraightLineCatchUpAndFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewDepreciationService(f.db, f.audit, f.invalidator, f.logger)

	asset := testutil.SeedAsset(t, f.db, "A-1", "bu-1", "")
	require.NoError(t, f.db.Model(&model.AssetModel{}).Where("id = ?", asset.ID).
		Update("next_depreciation_date", date(2026, 2, 1)).Error)

	// 三个月到期
	result, err := svc.Run(ctx, date(2026, 4, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assets)
	assert.Equal(t, 3, result.Entries)
	assert.Equal(t, "3000.00", result.Amount.StringFixed(2))

	loaded, err := repository.NewAssetRepository(f.db).FindByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "9000.00", loaded.BookValue.StringFixed(2))
	assert.Equal(t, "3000.00", loaded.AccumulatedDepreciation.StringFixed(2))
	require.NotNil(t, loaded.NextDepreciationDate)
	assert.Equal(t, date(2026, 5, 1), loaded.NextDepreciationDate.UTC())
	assert.False(t, loaded.IsFullyDepreciated)

	// 同一日期重复执行不会重复计提
	again, err := svc.Run(ctx, date(2026, 4, 15))
	require.NoError(t, err)
	assert.Zero(t, again.Entries)

	final, err := svc.Run(ctx, date(2027, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 9, final.Entries)

	loaded, err = repository.NewAssetRepository(f.db).FindByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.True(t, loaded.BookValue.IsZero())
	assert.True(t, loaded.IsFullyDepreciated)
	assert.Nil(t, loaded.NextDepreciationDate)

	history, err := repository.NewAssetHistoryRepository(f.db).FindByAssetID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Len(t, history, 12)
	for _, h := range history {
		assert.Equal(t, model.HistoryDepreciated, h.Action)
		assert.True(t, h.Amount.Valid)
	}
	assert.Contains(t, f.invalidator.Units(), "bu-1")
}

func TestDepreciation_DecliningBalanceStopsAtSalvage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewDepreciationService(f.db, f.audit, f.invalidator, f.logger)

	start := date(2026, 1, 1)
	next := date(2026, 2, 1)
	asset := &model.AssetModel{
		ID:                    uuid.New().String(),
		ItemCode:              "DB-1",
		Description:           "Generator",
		BusinessUnitID:        "bu-1",
		Status:                model.AssetAvailable,
		PurchaseCost:          decimal.NewFromInt(1200),
		SalvageValue:          decimal.NewFromInt(200),
		BookValue:             decimal.NewFromInt(1200),
		DepreciationMethod:    model.DepreciationDecliningBalance,
		UsefulLifeMonths:      4,
		DepreciationStartDate: &start,
		NextDepreciationDate:  &next,
		Version:               1,
	}
	require.NoError(t, f.db.Create(asset).Error)

	result, err := svc.Run(ctx, date(2026, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Entries)
	assert.Equal(t, "1000.00", result.Amount.StringFixed(2))

	loaded, err := repository.NewAssetRepository(f.db).FindByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", loaded.BookValue.StringFixed(2))
	assert.True(t, loaded.IsFullyDepreciated)
}

func TestDepreciation_MonthEndScheduleDoesNotDrift(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	svc := service.NewDepreciationService(f.db, f.audit, f.invalidator, f.logger)
	start := date(2026, 1, 31)

	asset, err := f.svc.Create(ctx, f.manager, &service.CreateAssetRequest{
		ItemCode:              "SRV-1",
		PurchaseCost:          decimal.NewFromInt(1200),
		UsefulLifeMonths:      12,
		DepreciationStartDate: &start,
	})
	require.NoError(t, err)
	require.NotNil(t, asset.NextDepreciationDate)
	assert.Equal(t, date(2026, 2, 28), asset.NextDepreciationDate.UTC())

	// 2 月 28 日, 3 月 31 日, 4 月 30 日
	result, err := svc.Run(ctx, date(2026, 4, 30))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Entries)

	loaded, err := repository.NewAssetRepository(f.db).FindByID(ctx, asset.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastDepreciationDate)
	assert.Equal(t, date(2026, 4, 30), loaded.LastDepreciationDate.UTC())
	require.NotNil(t, loaded.NextDepreciationDate)
	assert.Equal(t, date(2026, 5, 31), loaded.NextDepreciationDate.UTC())
}

func TestDepreciation_SkipsDisposedAndUnscheduledAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewDepreciationService(f.db, f.audit, f.invalidator, f.logger)

	disposed := testutil.SeedAsset(t, f.db, "A-1", "bu-1", "")
	require.NoError(t, f.db.Model(&model.AssetModel{}).Where("id = ?", disposed.ID).Updates(map[string]interface{}{
		"status":                 model.AssetDisposed,
		"next_depreciation_date": date(2026, 2, 1),
	}).Error)
	testutil.SeedAsset(t, f.db, "A-2", "bu-1", "")

	result, err := svc.Run(ctx, date(2026, 12, 31))
	require.NoError(t, err)
	assert.Zero(t, result.Entries)
	assert.Empty(t, f.invalidator.Units())
}

func TestMonthlyDepreciation(t *testing.T) {
	straight := &model.AssetModel{
		PurchaseCost:       decimal.NewFromInt(1000),
		SalvageValue:       decimal.NewFromInt(100),
		BookValue:          decimal.NewFromInt(1000),
		DepreciationMethod: model.DepreciationStraightLine,
		UsefulLifeMonths:   3,
	}
	assert.Equal(t, "300.00", service.MonthlyDepreciation(straight).StringFixed(2))

	declining := *straight
	declining.DepreciationMethod = model.DepreciationDecliningBalance
	declining.BookValue = decimal.NewFromInt(900)
	assert.Equal(t, "600.00", service.MonthlyDepreciation(&declining).StringFixed(2))

	straight.UsefulLifeMonths = 0
	assert.True(t, service.MonthlyDepreciation(straight).IsZero())
}

type countingDepreciation struct {
	runs int32
}

func (c *countingDepreciation) Run(_ context.Context, asOf time.Time) (*service.DepreciationResult, error) {
	atomic.AddInt32(&c.runs, 1)
	return &service.DepreciationResult{AsOf: asOf}, nil
}

func TestDepreciationScheduler_RunsImmediatelyAndStops(t *testing.T) {
	fake := &countingDepreciation{}
	f := newFixture(t)
	scheduler := service.NewDepreciationScheduler(fake, time.Hour, f.logger)

	scheduler.Start(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fake.runs) == 1
	}, time.Second, 10*time.Millisecond)

	scheduler.Stop()
	scheduler.Stop()
	assert.Equal(t, time.Hour, scheduler.Interval())
}
