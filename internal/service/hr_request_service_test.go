package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/service"
	"github.com/mautops/rdrealty-lms/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hrFixture struct {
	*fixture
	svc service.HRRequestService

	employee auth.Actor
	manager  auth.Actor
	other    auth.Actor
	hr       auth.Actor
}

func newHRFixture(t *testing.T) *hrFixture {
	t.Helper()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "E-1", auth.RoleUser, "bu-1", testutil.WithApprover("M-1"))
	testutil.SeedUser(t, f.db, "E-2", auth.RoleUser, "bu-1", testutil.WithApprover("M-2"))
	testutil.SeedUser(t, f.db, "T-123", auth.RoleUser, "bu-1", testutil.WithApprover("M-1"))
	testutil.SeedUser(t, f.db, "M-1", auth.RoleManager, "bu-1")
	testutil.SeedUser(t, f.db, "M-2", auth.RoleManager, "bu-1")
	testutil.SeedUser(t, f.db, "H-1", auth.RoleHR, "bu-1")

	return &hrFixture{
		fixture:  f,
		svc:      service.NewHRRequestService(f.db, f.policy, f.audit, f.invalidator, f.logger),
		employee: testutil.Actor("E-1", auth.RoleUser, "bu-1"),
		manager:  testutil.Actor("M-1", auth.RoleManager, "bu-1"),
		other:    testutil.Actor("M-2", auth.RoleManager, "bu-1"),
		hr:       testutil.Actor("H-1", auth.RoleHR, "bu-1"),
	}
}

func (f *hrFixture) leave(t *testing.T, actor auth.Actor) *model.LeaveRequestModel {
	t.Helper()
	l, err := f.svc.CreateLeave(context.Background(), actor, &service.CreateLeaveRequest{
		LeaveType: "VACATION",
		StartDate: date(2026, 3, 2),
		EndDate:   date(2026, 3, 4),
		Reason:    "family trip",
	})
	require.NoError(t, err)
	return l
}

func TestHRRequest_CreateLeaveStartsAtManagerStage(t *testing.T) {
	f := newHRFixture(t)

	l := f.leave(t, f.employee)
	assert.Equal(t, model.HRPendingManager, l.Status)
	assert.Equal(t, "3", l.Days.String())
	assert.Equal(t, []string{"bu-1"}, f.invalidator.Units())

	// 没有直属主管时直接进入 HR 审批
	own := f.leave(t, f.manager)
	assert.Equal(t, model.HRPendingHR, own.Status)
}

func TestHRRequest_CreateValidation(t *testing.T) {
	f := newHRFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateLeave(ctx, f.employee, &service.CreateLeaveRequest{
		LeaveType: "SICK",
		StartDate: date(2026, 3, 4),
		EndDate:   date(2026, 3, 2),
	})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.svc.CreateLeave(ctx, f.employee, &service.CreateLeaveRequest{StartDate: date(2026, 3, 2), EndDate: date(2026, 3, 2)})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.svc.CreateLeave(ctx, f.employee, &service.CreateLeaveRequest{
		LeaveType: "SICK",
		StartDate: date(2026, 3, 2),
		EndDate:   date(2026, 3, 2),
		Reason:    strings.Repeat("x", 501),
	})
	assert.ErrorIs(t, err, service.ErrValidation)

	stranger := testutil.Actor("X-9", auth.RoleUser, "bu-1")
	_, err = f.svc.CreateLeave(ctx, stranger, &service.CreateLeaveRequest{LeaveType: "SICK", StartDate: date(2026, 3, 2), EndDate: date(2026, 3, 2)})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestHRRequest_CreateOvertimeComputesHours(t *testing.T) {
	f := newHRFixture(t)
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	ot, err := f.svc.CreateOvertime(context.Background(), f.employee, &service.CreateOvertimeRequest{
		WorkDate:  date(2026, 3, 2),
		StartTime: start,
		EndTime:   start.Add(150 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.5").Equal(ot.Hours))
	assert.Equal(t, model.HRPendingManager, ot.Status)

	_, err = f.svc.CreateOvertime(context.Background(), f.employee, &service.CreateOvertimeRequest{
		WorkDate:  date(2026, 3, 2),
		StartTime: start,
		EndTime:   start,
	})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestHRRequest_TwoStageApproval(t *testing.T) {
	f := newHRFixture(t)
	ctx := context.Background()
	l := f.leave(t, f.employee)

	_, err := f.svc.Approve(ctx, f.other, repository.KindLeave, l.ID, "")
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = f.svc.Approve(ctx, f.hr, repository.KindLeave, l.ID, "")
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	rec, err := f.svc.Approve(ctx, f.manager, repository.KindLeave, l.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, model.HRPendingHR, rec.Status)
	require.NotNil(t, rec.ManagerID)
	assert.Equal(t, "M-1", *rec.ManagerID)
	assert.Equal(t, 2, rec.Version)

	_, err = f.svc.Approve(ctx, f.manager, repository.KindLeave, l.ID, "")
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	rec, err = f.svc.Approve(ctx, f.hr, repository.KindLeave, l.ID, "noted")
	require.NoError(t, err)
	assert.Equal(t, model.HRApproved, rec.Status)
	assert.Equal(t, "noted", rec.HRComments)

	_, err = f.svc.Approve(ctx, f.hr, repository.KindLeave, l.ID, "")
	assert.ErrorIs(t, err, service.ErrInvalidState)

	history, err := repository.NewStateHistoryRepository(f.db).FindByEntity(ctx, string(repository.KindLeave), l.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestHRRequest_SelfDecisionForbidden(t *testing.T) {
	f := newHRFixture(t)
	own := f.leave(t, testutil.Actor("H-1", auth.RoleHR, "bu-1"))

	_, err := f.svc.Approve(context.Background(), f.hr, repository.KindLeave, own.ID, "")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestHRRequest_RejectAndCancel(t *testing.T) {
	f := newHRFixture(t)
	ctx := context.Background()

	l := f.leave(t, f.employee)
	_, err := f.svc.Reject(ctx, f.manager, repository.KindLeave, l.ID, "  ")
	assert.ErrorIs(t, err, service.ErrValidation)
	// 仅含控制字符的意见清理后为空
	_, err = f.svc.Reject(ctx, f.manager, repository.KindLeave, l.ID, "\x01\x02")
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = f.svc.Reject(ctx, f.manager, repository.KindLeave, l.ID, strings.Repeat("x", 1001))
	assert.ErrorIs(t, err, service.ErrValidation)

	rec, err := f.svc.Reject(ctx, f.manager, repository.KindLeave, l.ID, " peak season\x07 ")
	require.NoError(t, err)
	assert.Equal(t, model.HRRejected, rec.Status)
	assert.Equal(t, "peak season", rec.ManagerComments)

	second := f.leave(t, f.employee)
	_, err = f.svc.Cancel(ctx, f.manager, repository.KindLeave, second.ID)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	rec, err = f.svc.Cancel(ctx, f.employee, repository.KindLeave, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HRCancelled, rec.Status)

	_, err = f.svc.Cancel(ctx, f.employee, repository.KindLeave, second.ID)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	_, err = f.svc.Cancel(ctx, f.employee, repository.KindLeave, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestHRRequest_PendingQueues(t *testing.T) {
	f := newHRFixture(t)
	ctx := context.Background()

	mine := f.leave(t, f.employee)
	f.leave(t, testutil.Actor("E-2", auth.RoleUser, "bu-1"))
	f.leave(t, testutil.Actor("T-123", auth.RoleUser, "bu-1"))
	managerOwn := f.leave(t, f.manager)

	// 主管只看到自己直属下属的申请, 隐藏账号不出现
	pending, err := f.svc.ListPendingLeave(ctx, f.manager)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, mine.ID, pending[0].ID)

	hrQueue, err := f.svc.ListPendingLeave(ctx, f.hr)
	require.NoError(t, err)
	require.Len(t, hrQueue, 1)
	assert.Equal(t, managerOwn.ID, hrQueue[0].ID)

	admin := testutil.Actor("A-1", auth.RoleAdmin, "bu-1")
	all, err := f.svc.ListPendingLeave(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := f.svc.ListPendingLeave(ctx, f.employee)
	require.NoError(t, err)
	assert.Empty(t, none)

	overtime, err := f.svc.ListPendingOvertime(ctx, f.manager)
	require.NoError(t, err)
	assert.Empty(t, overtime)
}

func TestHRRequest_ManagerQueueStaysInOwnUnit(t *testing.T) {
	f := newHRFixture(t)
	ctx := context.Background()

	testutil.SeedUser(t, f.db, "E-3", auth.RoleUser, "bu-2", testutil.WithApprover("M-1"))
	remote := f.leave(t, testutil.Actor("E-3", auth.RoleUser, "bu-2"))
	local := f.leave(t, f.employee)

	// 其他业务单元的下属申请既不可见也不可处理
	pending, err := f.svc.ListPendingLeave(ctx, f.manager)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, local.ID, pending[0].ID)

	_, err = f.svc.Approve(ctx, f.manager, repository.KindLeave, remote.ID, "")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}
