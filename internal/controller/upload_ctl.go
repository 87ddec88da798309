package controller

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/service"
)

// ==================== UploadController 上传 ====================

// UploadController 交班包与报告上传
type UploadController struct {
	submissions *service.SubmissionService
	logger      *zap.Logger
}

// NewUploadController 创建上传控制器
func NewUploadController(submissions *service.SubmissionService, logger *zap.Logger) *UploadController {
	return &UploadController{submissions: submissions, logger: logger}
}

// Shift 员工提交交班包
func (ctl *UploadController) Shift(c *gin.Context) {
	form, ok := ctl.parseForm(c)
	if !ok {
		return
	}

	files := make(map[string]*multipart.FileHeader, len(service.ShiftFields))
	for _, field := range service.ShiftFields {
		if fhs := form.File[field]; len(fhs) > 0 {
			files[field] = fhs[0]
		}
	}

	_, err := ctl.submissions.SubmitShift(c.Request.Context(), middleware.CurrentUser(c), c.PostForm("notes"), files)
	if ctl.handleError(c, err) {
		return
	}
	flashRedirect(c, "success", "Shift submitted. Great work!", "/dashboard")
}

// Report 经理提交报告
func (ctl *UploadController) Report(c *gin.Context) {
	form, ok := ctl.parseForm(c)
	if !ok {
		return
	}

	var file *multipart.FileHeader
	if fhs := form.File[service.ReportFileField]; len(fhs) > 0 {
		file = fhs[0]
	}

	sub, err := ctl.submissions.SubmitReport(
		c.Request.Context(),
		middleware.CurrentUser(c),
		c.PostForm("report_type"),
		c.PostForm("summary"),
		c.PostForm("notes"),
		file,
	)
	if ctl.handleError(c, err) {
		return
	}
	flashRedirect(c, "success", fmt.Sprintf("%s report sent!", sub.Category.Label()), "/dashboard")
}

// parseForm 解析 multipart 表单，超过大小上限返回 413
func (ctl *UploadController) parseForm(c *gin.Context) (*multipart.Form, bool) {
	form, err := c.MultipartForm()
	if err == nil {
		return form, true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		ctl.logger.Warn("上传超过大小上限", zap.Int64("limit", maxErr.Limit))
		c.Data(http.StatusRequestEntityTooLarge, "text/plain; charset=utf-8", []byte("413 Request Entity Too Large"))
		c.Abort()
		return nil, false
	}
	flashRedirect(c, "danger", "Upload could not be read. Please try again.", "/dashboard")
	return nil, false
}

// handleError 处理提交错误，已响应时返回 true
func (ctl *UploadController) handleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if msg, ok := validationMessage(err); ok {
		flashRedirect(c, "danger", msg, "/dashboard")
		return true
	}
	if errors.Is(err, service.ErrForbidden) {
		middleware.AbortForbidden(c)
		return true
	}
	serverError(c, ctl.logger, "保存提交失败", err)
	return true
}
