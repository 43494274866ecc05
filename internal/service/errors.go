package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mautops/rdrealty-lms/internal/utils"
	"github.com/mautops/rdrealty-lms/internal/workflow"
	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")

	// ErrConflict 记录已被并发修改
	ErrConflict = errors.New("conflict: record was modified concurrently")

	// ErrPartialState 批量操作中部分记录不满足条件
	ErrPartialState = errors.New("some records are not in the required state")

	// 与状态机共用的错误类别
	ErrUnauthorized = workflow.ErrUnauthorized
	ErrInvalidState = workflow.ErrInvalidState
	ErrValidation   = workflow.ErrValidation
)

// PartialStateError 批量操作中不满足条件的记录
type PartialStateError struct {
	// Reasons 记录 ID 到原因的映射
	Reasons map[string]string
}

// Invalid 返回排序后的不满足条件的记录 ID
func (e *PartialStateError) Invalid() []string {
	ids := make([]string, 0, len(e.Reasons))
	for id := range e.Reasons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *PartialStateError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, id := range e.Invalid() {
		parts = append(parts, fmt.Sprintf("%s (%s)", id, e.Reasons[id]))
	}
	return fmt.Sprintf("%s: %s", ErrPartialState, strings.Join(parts, ", "))
}

func (e *PartialStateError) Unwrap() error {
	return ErrPartialState
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func unauthorizedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// notFoundOr 将 gorm 未找到错误转换为 ErrNotFound
func notFoundOr(err error, what string, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// cleanText 清理自由文本字段, 超长时返回校验错误
func cleanText(field, s string, maxLen int) (string, error) {
	cleaned, err := utils.CleanText(s, maxLen)
	if err != nil {
		return "", validationf("%s exceeds %d characters", field, maxLen)
	}
	return cleaned, nil
}
