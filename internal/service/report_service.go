package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const reportDateLayout = "2006-01-02"

// 报表固定列
var (
	LeaveReportColumns = []string{
		"Employee ID", "Employee Name", "Leave Type", "Start Date", "End Date",
		"Days", "Status", "Reason", "Filed At",
	}
	DeploymentReportColumns = []string{
		"Transmittal No", "Item Code", "Description", "Employee ID", "Employee Name",
		"Status", "Deployed Date", "Expected Return", "Returned Date", "Notes",
	}
)

// ReportFilter 报表查询条件, To 为开区间
type ReportFilter struct {
	BusinessUnitID string
	From           time.Time
	To             time.Time
}

// Report 表格形式的报表
type Report struct {
	Name   string
	Header []string
	Rows   [][]string
}

// ReportService 报表服务接口
type ReportService interface {
	LeaveReport(ctx context.Context, actor auth.Actor, filter ReportFilter) (*Report, error)
	DeploymentReport(ctx context.Context, actor auth.Actor, filter ReportFilter) (*Report, error)
}

type reportService struct {
	db *gorm.DB
}

// NewReportService 创建报表服务
func NewReportService(db *gorm.DB) ReportService {
	return &reportService{db: db}
}

// scope 校验报表范围; 跨单元操作人可不指定业务单元
func (s *reportService) scope(actor auth.Actor, filter *ReportFilter) error {
	if filter.To.IsZero() || filter.From.IsZero() {
		return validationf("from and to dates are required")
	}
	if !filter.To.After(filter.From) {
		return validationf("to date must be after from date")
	}
	if filter.BusinessUnitID == "" && !actor.Has(auth.CapCrossUnitApprove) {
		filter.BusinessUnitID = actor.BusinessUnitID
	}
	if filter.BusinessUnitID != "" && !actor.CanActOnUnit(filter.BusinessUnitID) {
		return unauthorizedf("business unit %s is out of scope", filter.BusinessUnitID)
	}
	return nil
}

// LeaveReport 请假报表
func (s *reportService) LeaveReport(ctx context.Context, actor auth.Actor, filter ReportFilter) (*Report, error) {
	if !actor.IsAdmin() && actor.Role != auth.RoleHR && !actor.Has(auth.CapViewAllRequests) {
		return nil, unauthorizedf("not authorized to view leave reports")
	}
	if err := s.scope(actor, &filter); err != nil {
		return nil, err
	}

	leaves, err := repository.NewHRRequestRepository(s.db).ListLeaveBetween(ctx, filter.BusinessUnitID, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load leave requests: %w", err)
	}
	ids := make([]string, 0, len(leaves))
	for _, l := range leaves {
		ids = append(ids, l.EmployeeID)
	}
	users, err := repository.NewUserRepository(s.db).FindByEmployeeIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load employees: %w", err)
	}

	report := &Report{Name: "leave", Header: LeaveReportColumns}
	for _, l := range leaves {
		report.Rows = append(report.Rows, []string{
			l.EmployeeID,
			nameOf(users, l.EmployeeID),
			l.LeaveType,
			l.StartDate.Format(reportDateLayout),
			l.EndDate.Format(reportDateLayout),
			l.Days.String(),
			string(l.Status),
			l.Reason,
			l.CreatedAt.Format(time.RFC3339),
		})
	}
	return report, nil
}

// DeploymentReport 资产领用报表
func (s *reportService) DeploymentReport(ctx context.Context, actor auth.Actor, filter ReportFilter) (*Report, error) {
	if !actor.Has(auth.CapAssetManage) && !actor.Has(auth.CapAssetAccounting) {
		return nil, unauthorizedf("not authorized to view deployment reports")
	}
	if err := s.scope(actor, &filter); err != nil {
		return nil, err
	}

	deployments, err := repository.NewAssetDeploymentRepository(s.db).ListBetween(ctx, filter.BusinessUnitID, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployments: %w", err)
	}
	ids := make([]string, 0, len(deployments))
	for _, d := range deployments {
		ids = append(ids, d.EmployeeID)
	}
	users, err := repository.NewUserRepository(s.db).FindByEmployeeIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load employees: %w", err)
	}

	report := &Report{Name: "deployment", Header: DeploymentReportColumns}
	for _, d := range deployments {
		var itemCode, description string
		if d.Asset != nil {
			itemCode, description = d.Asset.ItemCode, d.Asset.Description
		}
		report.Rows = append(report.Rows, []string{
			d.TransmittalNo,
			itemCode,
			description,
			d.EmployeeID,
			nameOf(users, d.EmployeeID),
			string(d.Status),
			formatDate(d.DeployedDate),
			formatDate(d.ExpectedReturnDate),
			formatDate(d.ReturnedDate),
			d.Notes,
		})
	}
	return report, nil
}

// WriteCSV 输出 CSV, 每个字段都加双引号
func WriteCSV(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)
	if err := writeQuotedRow(bw, r.Header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := writeQuotedRow(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeQuotedRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

// WriteXLSX 输出 Excel 文件
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := r.Name
	if sheet == "" {
		sheet = "Report"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return err
	}

	header := make([]interface{}, len(r.Header))
	for i, h := range r.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(r.Header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	for i, row := range r.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return err
	}

	return f.Write(w)
}

func nameOf(users map[string]*model.UserModel, employeeID string) string {
	if u, ok := users[employeeID]; ok {
		return u.Name
	}
	return ""
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(reportDateLayout)
}
