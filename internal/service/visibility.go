package service

import (
	"strings"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/workflow"
	"gorm.io/gorm"
)

// hrPendingStatuses 人事申请待办状态
var hrPendingStatuses = []model.HRRequestStatus{model.HRPendingManager, model.HRPendingHR}

// none 空结果
func none(db *gorm.DB) *gorm.DB {
	return db.Where("1 = 0")
}

// excludeEmployees 排除系统/测试账号
func excludeEmployees(column string, excluded []string) repository.Scope {
	return func(db *gorm.DB) *gorm.DB {
		if len(excluded) == 0 {
			return db
		}
		return db.Where(column+" NOT IN ?", excluded)
	}
}

// unitScope 业务单元范围, 具备跨单元能力时不限制
func unitScope(actor auth.Actor) repository.Scope {
	return func(db *gorm.DB) *gorm.DB {
		if actor.Has(auth.CapCrossUnitApprove) {
			return db
		}
		return db.Where("business_unit_id = ?", actor.BusinessUnitID)
	}
}

// PendingHRRequestScope 请假/加班待办可见范围
//   - ADMIN 或 view_all_requests: 本单元全部待办
//   - HR: 主管环节已完成的待办
//   - MANAGER: 本单元直属下属待主管审批的申请
//   - 其他角色: 无
func PendingHRRequestScope(actor auth.Actor, excluded []string) repository.Scope {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case actor.IsAdmin() || actor.Has(auth.CapViewAllRequests):
			db = db.Scopes(unitScope(actor)).Where("status IN ?", hrPendingStatuses)
		case actor.Role == auth.RoleHR:
			db = db.Scopes(unitScope(actor)).Where("status = ?", model.HRPendingHR)
		case actor.Role == auth.RoleManager:
			db = db.Scopes(unitScope(actor)).Where("status = ?", model.HRPendingManager).
				Where("employee_id IN (?)", db.Session(&gorm.Session{NewDB: true}).
					Model(&model.UserModel{}).
					Select("employee_id").
					Where("approver_id = ?", actor.EmployeeID))
		default:
			return none(db)
		}
		return db.Scopes(excludeEmployees("employee_id", excluded))
	}
}

// PendingMaterialRequestScope 物料申请待办可见范围, 各条件取并集
func PendingMaterialRequestScope(actor auth.Actor, excluded []string) repository.Scope {
	return func(db *gorm.DB) *gorm.DB {
		var (
			parts []string
			args  []interface{}
		)
		add := func(sql string, vars ...interface{}) {
			parts = append(parts, "("+sql+")")
			args = append(args, vars...)
		}

		if actor.IsAdmin() {
			add("status IN ?", workflow.PendingStatuses())
		} else {
			add("status = ? AND rec_approver_id = ?", workflow.StatusForRecApproval, actor.EmployeeID)
			add("status = ? AND final_approver_id = ?", workflow.StatusForFinalApproval, actor.EmployeeID)
			if actor.Has(auth.CapStoreUseReview) {
				add("status = ? AND is_store_use = ?", workflow.StatusForReview, true)
			}
			if actor.Has(auth.CapBudgetApprove) {
				add("status = ?", workflow.StatusPendingBudgetApproval)
			}
			if actor.Has(auth.CapMRSCoordinate) {
				add("status IN ?", []workflow.Status{workflow.StatusFinalApproved, workflow.StatusForServing})
			}
			if actor.Has(auth.CapMRSPost) {
				add("status = ?", workflow.StatusForPosting)
			}
		}

		return db.Where("("+strings.Join(parts, " OR ")+")", args...).
			Scopes(unitScope(actor), excludeEmployees("requester_id", excluded))
	}
}

// AwaitingMyApprovalScope 等待本人推荐/终审的物料申请
func AwaitingMyApprovalScope(actor auth.Actor, excluded []string) repository.Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("((status = ? AND rec_approver_id = ?) OR (status = ? AND final_approver_id = ?))",
			workflow.StatusForRecApproval, actor.EmployeeID,
			workflow.StatusForFinalApproval, actor.EmployeeID).
			Scopes(unitScope(actor), excludeEmployees("requester_id", excluded))
	}
}

// StatusScope 指定状态且在本人业务单元内
func StatusScope(actor auth.Actor, excluded []string, statuses ...workflow.Status) repository.Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status IN ?", statuses).
			Scopes(unitScope(actor), excludeEmployees("requester_id", excluded))
	}
}
