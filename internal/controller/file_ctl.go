package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/service"
)

// ==================== FileController 文件下载 ====================

// FileController 附件下载
type FileController struct {
	submissions *service.SubmissionService
	logger      *zap.Logger
}

// NewFileController 创建下载控制器
func NewFileController(submissions *service.SubmissionService, logger *zap.Logger) *FileController {
	return &FileController{submissions: submissions, logger: logger}
}

// Download GET /files/*filepath
// 越界路径 403，格式非法 400，不存在 404
func (ctl *FileController) Download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("filepath"), "/")

	rc, info, attachment, err := ctl.submissions.Download(c.Request.Context(), middleware.CurrentUser(c), key)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPathEscapes), errors.Is(err, service.ErrForbidden):
			c.Data(http.StatusForbidden, "text/plain; charset=utf-8", []byte("403 Forbidden"))
		case errors.Is(err, service.ErrInvalidPath):
			c.Data(http.StatusBadRequest, "text/plain; charset=utf-8", []byte("400 Bad Request"))
		case errors.Is(err, service.ErrNotFound):
			c.Data(http.StatusNotFound, "text/plain; charset=utf-8", []byte("404 Not Found"))
		default:
			serverError(c, ctl.logger, "读取文件失败", err)
		}
		return
	}
	defer rc.Close()

	// Content-Type 只按扩展名白名单给出，非图片视频一律作为附件下载
	contentType := service.ContentTypeFor(key)
	disposition := "attachment"
	if service.Inline(attachment.Kind, contentType) {
		disposition = "inline"
	}

	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, map[string]string{
		"Content-Disposition":    fmt.Sprintf("%s; filename=%q", disposition, attachment.OriginalName),
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "private, max-age=0",
	})
}
