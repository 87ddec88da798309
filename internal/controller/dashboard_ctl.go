package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/model"
	"hiremote_portal/internal/service"
)

// ==================== DashboardController 看板 ====================

// DashboardController 员工 / 经理看板与筛选列表
type DashboardController struct {
	submissions *service.SubmissionService
	logger      *zap.Logger
}

// NewDashboardController 创建看板控制器
func NewDashboardController(submissions *service.SubmissionService, logger *zap.Logger) *DashboardController {
	return &DashboardController{submissions: submissions, logger: logger}
}

// Dashboard 按角色渲染看板，客户直接跳转到列表页
func (ctl *DashboardController) Dashboard(c *gin.Context) {
	user := middleware.CurrentUser(c)
	ctx := c.Request.Context()

	switch user.Role {
	case model.RoleEmployee:
		recent, err := ctl.submissions.RecentShifts(ctx, user, service.RecentShiftLimit)
		if err != nil {
			serverError(c, ctl.logger, "查询最近交班失败", err)
			return
		}
		page(c, http.StatusOK, "dashboard_employee.html", gin.H{
			"Title":       "Dashboard",
			"Submissions": recent,
		})

	case model.RoleManager:
		all, _, err := ctl.submissions.List(ctx, user, service.SubmissionQuery{})
		if err != nil {
			serverError(c, ctl.logger, "查询提交失败", err)
			return
		}
		stores, err := ctl.submissions.StoreNumbers(ctx)
		if err != nil {
			serverError(c, ctl.logger, "查询门店失败", err)
			return
		}
		page(c, http.StatusOK, "dashboard_manager.html", gin.H{
			"Title":       "Dashboard",
			"Submissions": all,
			"Stores":      stores,
			"ReportTypes": model.ReportCategories,
		})

	case model.RoleClient:
		c.Redirect(http.StatusFound, "/reports")

	default:
		middleware.AbortForbidden(c)
	}
}

// Reports 筛选列表（客户 / 经理）
// 客户的门店条件始终被强制为本门店
func (ctl *DashboardController) Reports(c *gin.Context) {
	user := middleware.CurrentUser(c)

	data := gin.H{
		"Title":        "Submissions",
		"CanPickStore": user.Role == model.RoleManager,
		"Categories":   []model.Category{model.CategoryShift, model.CategoryDaily, model.CategoryWeekly, model.CategoryMonthly},
	}
	var flashes []middleware.Flash

	// 页面不分页，limit 只在 API 中生效；绑定失败时保留已解析的条件
	var query service.SubmissionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		ctl.logger.Debug("筛选参数解析失败", zap.String("query", c.Request.URL.RawQuery), zap.Error(err))
		flashes = append(flashes, middleware.Flash{Kind: "warning", Message: "Some filters could not be read and were ignored."})
	}
	query.Limit = 0

	submissions, effective, err := ctl.submissions.List(c.Request.Context(), user, query)
	if err != nil {
		msg, ok := validationMessage(err)
		if !ok {
			serverError(c, ctl.logger, "查询提交失败", err)
			return
		}
		flashes = append(flashes, middleware.Flash{Kind: "danger", Message: msg})
	}
	data["Flashes"] = flashes
	data["Submissions"] = submissions
	data["Filters"] = effective

	if user.Role == model.RoleManager {
		stores, err := ctl.submissions.StoreNumbers(c.Request.Context())
		if err != nil {
			serverError(c, ctl.logger, "查询门店失败", err)
			return
		}
		data["Stores"] = stores
	}

	page(c, http.StatusOK, "reports.html", data)
}
