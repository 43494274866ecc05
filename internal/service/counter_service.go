package service

import (
	"context"
	"time"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/cache"
	"github.com/mautops/rdrealty-lms/internal/metrics"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/workflow"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// 计数缓存命名空间
const (
	CounterNamespacePending     = "pending"
	CounterNamespaceCoordinator = "coordinator"

	counterKeyPrefix = "counters"
	scopeAllUnits    = "all"
)

// DashboardCounts 看板角标计数
type DashboardCounts struct {
	PendingLeave              int64 `json:"pending_leave"`
	PendingOvertime           int64 `json:"pending_overtime"`
	MRAwaitingMyApproval      int64 `json:"mr_awaiting_my_approval"`
	MRAwaitingAcknowledgement int64 `json:"mr_awaiting_acknowledgement"`
	MRForReview               int64 `json:"mr_for_review"`
	MRPendingBudget           int64 `json:"mr_pending_budget"`
	MRForServing              int64 `json:"mr_for_serving"`
	MRForPosting              int64 `json:"mr_for_posting"`
	AssetsDueForDepreciation  int64 `json:"assets_due_for_depreciation"`
	PendingDeployments        int64 `json:"pending_deployments"`
	ActiveVerifications       int64 `json:"active_verifications"`
}

// pendingCounts 个人待办部分
type pendingCounts struct {
	PendingLeave              int64 `json:"pending_leave"`
	PendingOvertime           int64 `json:"pending_overtime"`
	MRAwaitingMyApproval      int64 `json:"mr_awaiting_my_approval"`
	MRAwaitingAcknowledgement int64 `json:"mr_awaiting_acknowledgement"`
}

// coordinatorCounts 按能力划分的协调队列部分
type coordinatorCounts struct {
	MRForReview              int64 `json:"mr_for_review"`
	MRPendingBudget          int64 `json:"mr_pending_budget"`
	MRForServing             int64 `json:"mr_for_serving"`
	MRForPosting             int64 `json:"mr_for_posting"`
	AssetsDueForDepreciation int64 `json:"assets_due_for_depreciation"`
	PendingDeployments       int64 `json:"pending_deployments"`
	ActiveVerifications      int64 `json:"active_verifications"`
}

// BadgeNotifier 通知在线客户端刷新角标
type BadgeNotifier interface {
	NotifyBadgeRefresh(businessUnitID string) int
}

// CounterService 看板计数服务
type CounterService interface {
	Counts(ctx context.Context, actor auth.Actor) (*DashboardCounts, error)
	Invalidate(ctx context.Context, businessUnitIDs ...string)
}

type counterService struct {
	db       *gorm.DB
	policy   *auth.Policy
	store    cache.Store
	ttl      time.Duration
	notifier BadgeNotifier
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCounterService 创建计数服务, store 为空时不缓存
func NewCounterService(db *gorm.DB, policy *auth.Policy, store cache.Store, ttl time.Duration, notifier BadgeNotifier, logger *logrus.Logger) CounterService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &counterService{
		db:       db,
		policy:   policy,
		store:    store,
		ttl:      ttl,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

type countJob struct {
	dst *int64
	fn  func(ctx context.Context) (int64, error)
}

// Counts 并发执行各项计数查询
func (s *counterService) Counts(ctx context.Context, actor auth.Actor) (*DashboardCounts, error) {
	var (
		pending pendingCounts
		coord   coordinatorCounts
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.cached(gctx, CounterNamespacePending, actor, &pending, func(ctx context.Context) error {
			return s.countPending(ctx, actor, &pending)
		})
	})
	g.Go(func() error {
		return s.cached(gctx, CounterNamespaceCoordinator, actor, &coord, func(ctx context.Context) error {
			return s.countCoordinator(ctx, actor, &coord)
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &DashboardCounts{
		PendingLeave:              pending.PendingLeave,
		PendingOvertime:           pending.PendingOvertime,
		MRAwaitingMyApproval:      pending.MRAwaitingMyApproval,
		MRAwaitingAcknowledgement: pending.MRAwaitingAcknowledgement,
		MRForReview:               coord.MRForReview,
		MRPendingBudget:           coord.MRPendingBudget,
		MRForServing:              coord.MRForServing,
		MRForPosting:              coord.MRForPosting,
		AssetsDueForDepreciation:  coord.AssetsDueForDepreciation,
		PendingDeployments:        coord.PendingDeployments,
		ActiveVerifications:       coord.ActiveVerifications,
	}, nil
}

// cached 读取缓存, 未命中时计算并写回; 缓存故障不影响结果
func (s *counterService) cached(ctx context.Context, namespace string, actor auth.Actor, dest interface{}, compute func(ctx context.Context) error) error {
	key := counterKey(namespace, actor)
	if s.store != nil {
		hit, err := s.store.Get(ctx, key, dest)
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("failed to read counter cache")
		} else if hit {
			return nil
		}
	}

	if err := compute(ctx); err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.Set(ctx, key, dest, s.ttl); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("failed to write counter cache")
		}
	}
	return nil
}

func (s *counterService) countPending(ctx context.Context, actor auth.Actor, out *pendingCounts) error {
	excluded := s.policy.ExcludedEmployeeIDs()
	hr := repository.NewHRRequestRepository(s.db)
	mr := repository.NewMaterialRequestRepository(s.db)

	return runCounts(ctx,
		countJob{&out.PendingLeave, func(ctx context.Context) (int64, error) {
			return hr.Count(ctx, repository.KindLeave, PendingHRRequestScope(actor, excluded))
		}},
		countJob{&out.PendingOvertime, func(ctx context.Context) (int64, error) {
			return hr.Count(ctx, repository.KindOvertime, PendingHRRequestScope(actor, excluded))
		}},
		countJob{&out.MRAwaitingMyApproval, func(ctx context.Context) (int64, error) {
			return mr.Count(ctx, AwaitingMyApprovalScope(actor, excluded))
		}},
		countJob{&out.MRAwaitingAcknowledgement, func(ctx context.Context) (int64, error) {
			return mr.Count(ctx, func(db *gorm.DB) *gorm.DB {
				return db.Where("requester_id = ? AND status = ? AND acknowledged_at IS NULL",
					actor.EmployeeID, workflow.StatusPosted)
			})
		}},
	)
}

func (s *counterService) countCoordinator(ctx context.Context, actor auth.Actor, out *coordinatorCounts) error {
	excluded := s.policy.ExcludedEmployeeIDs()
	mr := repository.NewMaterialRequestRepository(s.db)

	var jobs []countJob
	if actor.Has(auth.CapStoreUseReview) {
		jobs = append(jobs, countJob{&out.MRForReview, func(ctx context.Context) (int64, error) {
			return mr.Count(ctx, StatusScope(actor, excluded, workflow.StatusForReview), func(db *gorm.DB) *gorm.DB {
				return db.Where("is_store_use = ?", true)
			})
		}})
	}
	if actor.Has(auth.CapBudgetApprove) {
		jobs = append(jobs, countJob{&out.MRPendingBudget, func(ctx context.Context) (int64, error) {
			return mr.Count(ctx, StatusScope(actor, excluded, workflow.StatusPendingBudgetApproval))
		}})
	}
	if actor.Has(auth.CapMRSCoordinate) {
		jobs = append(jobs, countJob{&out.MRForServing, func(ctx context.Context) (int64, error) {
			return mr.Count(ctx, StatusScope(actor, excluded, workflow.StatusFinalApproved, workflow.StatusForServing))
		}})
	}
	if actor.Has(auth.CapMRSPost) {
		jobs = append(jobs, countJob{&out.MRForPosting, func(ctx context.Context) (int64, error) {
			return mr.Count(ctx, StatusScope(actor, excluded, workflow.StatusForPosting))
		}})
	}
	if actor.Has(auth.CapAssetAccounting) {
		assets := repository.NewAssetRepository(s.db)
		deployments := repository.NewAssetDeploymentRepository(s.db)
		asOf := s.now()
		jobs = append(jobs,
			countJob{&out.AssetsDueForDepreciation, func(ctx context.Context) (int64, error) {
				return assets.Count(ctx, repository.DepreciationDue(asOf), unitScope(actor))
			}},
			countJob{&out.PendingDeployments, func(ctx context.Context) (int64, error) {
				return deployments.Count(ctx, unitScope(actor), func(db *gorm.DB) *gorm.DB {
					return db.Where("status = ?", model.DeploymentPendingAccounting)
				})
			}},
		)
	}
	if actor.Has(auth.CapAssetManage) || actor.Has(auth.CapAssetAccounting) {
		verifications := repository.NewVerificationRepository(s.db)
		jobs = append(jobs, countJob{&out.ActiveVerifications, func(ctx context.Context) (int64, error) {
			return verifications.Count(ctx, unitScope(actor), func(db *gorm.DB) *gorm.DB {
				return db.Where("status IN ?", []model.VerificationStatus{model.VerificationPlanned, model.VerificationInProgress})
			})
		}})
	}
	return runCounts(ctx, jobs...)
}

// runCounts 并发执行计数, 任一失败即返回
func runCounts(ctx context.Context, jobs ...countJob) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			n, err := job.fn(gctx)
			if err != nil {
				return err
			}
			*job.dst = n
			return nil
		})
	}
	return g.Wait()
}

// Invalidate 删除相关业务单元的计数缓存并通知在线客户端
func (s *counterService) Invalidate(ctx context.Context, businessUnitIDs ...string) {
	seen := make(map[string]bool, len(businessUnitIDs))
	for _, bu := range businessUnitIDs {
		if bu == "" || seen[bu] {
			continue
		}
		seen[bu] = true

		s.dropUnit(ctx, bu)
		metrics.RecordCacheInvalidation()
		if s.notifier != nil {
			n := s.notifier.NotifyBadgeRefresh(bu)
			s.logger.WithFields(logrus.Fields{
				"business_unit_id": bu,
				"clients":          n,
			}).Debug("badge refresh broadcast")
		}
	}
	if len(seen) > 0 {
		// 跨单元的计数同样受影响
		s.dropUnit(ctx, scopeAllUnits)
	}
}

func (s *counterService) dropUnit(ctx context.Context, scope string) {
	if s.store == nil {
		return
	}
	for _, ns := range []string{CounterNamespacePending, CounterNamespaceCoordinator} {
		prefix := cache.Key(counterKeyPrefix, ns, scope) + ":"
		if err := s.store.DeletePrefix(ctx, prefix); err != nil {
			s.logger.WithError(err).WithField("prefix", prefix).Warn("failed to invalidate counter cache")
		}
	}
}

// counterKey counters:<namespace>:<bu|all>:<employee>
func counterKey(namespace string, actor auth.Actor) string {
	scope := actor.BusinessUnitID
	if actor.Has(auth.CapCrossUnitApprove) {
		scope = scopeAllUnits
	}
	return cache.Key(counterKeyPrefix, namespace, scope, actor.EmployeeID)
}
