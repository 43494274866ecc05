package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/service"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ReportController 报表导出控制器
type ReportController struct {
	svc service.ReportService
}

// NewReportController 创建报表导出控制器
func NewReportController(svc service.ReportService) *ReportController {
	return &ReportController{svc: svc}
}

type reportFunc func(ctx context.Context, actor auth.Actor, filter service.ReportFilter) (*service.Report, error)

// Export 导出报表, 支持 format=csv|xlsx, from/to 为 YYYY-MM-DD, to 不含当天之后
// @Summary      导出报表
// @Tags         报表
// @Produce      octet-stream
// @Param        name path string true "leave 或 deployment"
// @Param        format query string false "csv 或 xlsx"
// @Param        from query string true "开始日期"
// @Param        to query string true "结束日期"
// @Router       /reports/{name} [get]
// @Security     BearerAuth
func (rc *ReportController) Export(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var build reportFunc
	switch c.Param("name") {
	case "leave":
		build = rc.svc.LeaveReport
	case "deployment":
		build = rc.svc.DeploymentReport
	default:
		Error(c, http.StatusNotFound, "not found", "unknown report "+c.Param("name"))
		return
	}

	filter, err := parseReportFilter(c)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	report, err := build(c.Request.Context(), actor, filter)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
		ext         string
	)
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		contentType, ext = contentTypeCSV, "csv"
		err = service.WriteCSV(&buf, report)
	case "xlsx":
		contentType, ext = contentTypeXLSX, "xlsx"
		err = service.WriteXLSX(&buf, report)
	default:
		Error(c, http.StatusBadRequest, "invalid request", "format must be csv or xlsx")
		return
	}
	if err != nil {
		HandleServiceError(c, fmt.Errorf("failed to render report: %w", err))
		return
	}

	filename := fmt.Sprintf("%s_%s_%s.%s", report.Name,
		filter.From.Format("20060102"), filter.To.AddDate(0, 0, -1).Format("20060102"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func parseReportFilter(c *gin.Context) (service.ReportFilter, error) {
	filter := service.ReportFilter{BusinessUnitID: c.Query("business_unit_id")}
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		return filter, fmt.Errorf("from must be YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		return filter, fmt.Errorf("to must be YYYY-MM-DD")
	}
	filter.From = from
	// 结束日期包含当天
	filter.To = to.AddDate(0, 0, 1)
	return filter, nil
}
