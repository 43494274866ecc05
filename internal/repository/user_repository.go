package repository

import (
	"context"
	"errors"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/model"
	"gorm.io/gorm"
)

// UserRepository 员工仓储接口
type UserRepository interface {
	Save(ctx context.Context, user *model.UserModel) error
	FindByEmployeeID(ctx context.Context, employeeID string) (*model.UserModel, error)
	FindByEmployeeIDs(ctx context.Context, employeeIDs []string) (map[string]*model.UserModel, error)
	FindBusinessUnit(ctx context.Context, id string) (*model.BusinessUnitModel, error)
	// LookupIdentity 实现 auth.IdentityLookup
	LookupIdentity(ctx context.Context, employeeID string) (*auth.Identity, error)
}

// userRepository 员工仓储实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建员工仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Save 保存员工
func (r *userRepository) Save(ctx context.Context, user *model.UserModel) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(user).Error
}

// FindByEmployeeID 根据员工编号查找
func (r *userRepository) FindByEmployeeID(ctx context.Context, employeeID string) (*model.UserModel, error) {
	var user model.UserModel
	if err := r.db.WithContext(ctx).Where("employee_id = ?", employeeID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmployeeIDs 批量查找, 返回以员工编号为键的映射
func (r *userRepository) FindByEmployeeIDs(ctx context.Context, employeeIDs []string) (map[string]*model.UserModel, error) {
	out := make(map[string]*model.UserModel, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return out, nil
	}
	var users []*model.UserModel
	if err := r.db.WithContext(ctx).Where("employee_id IN ?", employeeIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.EmployeeID] = u
	}
	return out, nil
}

// FindBusinessUnit 查找业务单元
func (r *userRepository) FindBusinessUnit(ctx context.Context, id string) (*model.BusinessUnitModel, error) {
	var bu model.BusinessUnitModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&bu).Error; err != nil {
		return nil, err
	}
	return &bu, nil
}

// LookupIdentity 读取员工记录并转换为身份信息, 员工不存在或已停用时返回 nil
func (r *userRepository) LookupIdentity(ctx context.Context, employeeID string) (*auth.Identity, error) {
	user, err := r.FindByEmployeeID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}

	id := &auth.Identity{
		EmployeeID:     user.EmployeeID,
		Name:           user.Name,
		Role:           auth.ParseRole(user.Role),
		BusinessUnitID: user.BusinessUnitID,
		IsRDHMRS:       user.IsRDHMRS,
		Permissions:    user.PermissionKeys(),
	}
	if user.DepartmentID != nil {
		id.DepartmentID = *user.DepartmentID
	}
	return id, nil
}
