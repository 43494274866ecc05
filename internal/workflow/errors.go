package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized 操作人无权执行该操作
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation 输入不合法
	ErrValidation = errors.New("validation error")
)

// TransitionError 状态迁移失败
type TransitionError struct {
	From   Status
	Action Action
	Kind   error
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s request in status %s: %s", e.Kind, e.Action, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}

func newTransitionError(from Status, action Action, kind error, reason string) *TransitionError {
	return &TransitionError{From: from, Action: action, Kind: kind, Reason: reason}
}
