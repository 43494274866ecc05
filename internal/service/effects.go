package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 状态历史与审计日志中的实体类型
const (
	EntityMaterialRequest = "material_request"
	EntityLeaveRequest    = "leave_request"
	EntityOvertime        = "overtime_request"
	EntityAsset           = "asset"
	EntityVerification    = "verification"
)

// Invalidator 看板计数失效
type Invalidator interface {
	Invalidate(ctx context.Context, businessUnitIDs ...string)
}

// effects 提交后的副作用: 审计日志与计数失效
type effects struct {
	audit       AuditLogService
	invalidator Invalidator
	logger      *logrus.Logger
}

func newEffects(audit AuditLogService, invalidator Invalidator, logger *logrus.Logger) effects {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return effects{audit: audit, invalidator: invalidator, logger: logger}
}

// record 写审计日志, 失败只记录告警
func (e effects) record(ctx context.Context, userID, action, resourceType, resourceID string, details interface{}) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordAction(ctx, userID, action, resourceType, resourceID, details); err != nil {
		e.logger.WithFields(logrus.Fields{
			"action":        action,
			"resource_type": resourceType,
			"resource_id":   resourceID,
		}).WithError(err).Warn("failed to record audit log")
	}
}

// invalidate 失效相关业务单元的计数缓存
func (e effects) invalidate(ctx context.Context, businessUnitIDs ...string) {
	if e.invalidator == nil {
		return
	}
	e.invalidator.Invalidate(ctx, businessUnitIDs...)
}

// saveHistory 在事务内写状态历史
func saveHistory(ctx context.Context, tx *gorm.DB, entityType, entityID, action, from, to, reason, operator string) error {
	return repository.NewStateHistoryRepository(tx).Save(ctx, &model.StateHistoryModel{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
		Operator:   operator,
		CreatedAt:  time.Now(),
	})
}
