package service_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/service"
	"github.com/mautops/rdrealty-lms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReport_LeaveReport(t *testing.T) {
	f := newHRFixture(t)
	ctx := context.Background()
	f.leave(t, f.employee)

	reports := service.NewReportService(f.db)
	filter := service.ReportFilter{From: date(2026, 3, 1), To: date(2026, 4, 1)}

	report, err := reports.LeaveReport(ctx, f.hr, filter)
	require.NoError(t, err)
	assert.Equal(t, service.LeaveReportColumns, report.Header)
	require.Len(t, report.Rows, 1)
	row := report.Rows[0]
	assert.Equal(t, "E-1", row[0])
	assert.Equal(t, "Employee E-1", row[1])
	assert.Equal(t, "2026-03-02", row[3])
	assert.Equal(t, "PENDING_MANAGER", row[6])

	empty, err := reports.LeaveReport(ctx, f.hr, service.ReportFilter{From: date(2026, 5, 1), To: date(2026, 6, 1)})
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)

	_, err = reports.LeaveReport(ctx, f.employee, filter)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = reports.LeaveReport(ctx, f.hr, service.ReportFilter{From: date(2026, 4, 1), To: date(2026, 3, 1)})
	assert.ErrorIs(t, err, service.ErrValidation)

	filter.BusinessUnitID = "bu-2"
	_, err = reports.LeaveReport(ctx, f.hr, filter)
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestReport_DeploymentReportRequiresAssetCapability(t *testing.T) {
	f := newFixture(t)
	reports := service.NewReportService(f.db)
	filter := service.ReportFilter{From: date(2026, 1, 1), To: date(2027, 1, 1)}

	_, err := reports.DeploymentReport(context.Background(), testutil.Actor("E-1", auth.RoleUser, "bu-1"), filter)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	report, err := reports.DeploymentReport(context.Background(),
		testutil.Actor("AC-1", auth.RoleAcctg, "bu-1", auth.CapAssetAccounting), filter)
	require.NoError(t, err)
	assert.Equal(t, service.DeploymentReportColumns, report.Header)
	assert.Empty(t, report.Rows)
}

func TestWriteCSV_QuotesEveryField(t *testing.T) {
	report := &service.Report{
		Header: []string{"Name", "Notes"},
		Rows: [][]string{
			{"Cruz, Ana", `said "ok"`},
			{"", "plain"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, service.WriteCSV(&buf, report))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\r\n"), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"Name","Notes"`, lines[0])
	assert.Equal(t, `"Cruz, Ana","said ""ok"""`, lines[1])
	assert.Equal(t, `"","plain"`, lines[2])
}

func TestWriteXLSX(t *testing.T) {
	report := &service.Report{
		Name:   "leave",
		Header: service.LeaveReportColumns,
		Rows:   [][]string{{"E-1", "Employee E-1", "VACATION"}},
	}

	var buf bytes.Buffer
	require.NoError(t, service.WriteXLSX(&buf, report))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("leave")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Employee ID", rows[0][0])
	assert.Equal(t, "VACATION", rows[1][2])
}
