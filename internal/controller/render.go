package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/service"
)

// AppName 页面标题
const AppName = "Hiremote Operations Portal"

// page 渲染页面，自动带上当前用户与 Flash
func page(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["AppName"] = AppName
	data["User"] = middleware.CurrentUser(c)

	flashes := middleware.Flashes(c)
	if extra, ok := data["Flashes"].([]middleware.Flash); ok {
		flashes = append(flashes, extra...)
	}
	data["Flashes"] = flashes

	c.HTML(status, name, data)
}

// flashRedirect 写入 Flash 后 302 跳转
func flashRedirect(c *gin.Context, kind, message, location string) {
	middleware.AddFlash(c, kind, message)
	c.Redirect(http.StatusFound, location)
}

// serverError 记录日志并返回 500
func serverError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	_ = c.Error(err)
	logger.Error(msg, zap.Error(err), zap.String("path", c.Request.URL.Path))
	c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("500 Internal Server Error"))
	c.Abort()
}

// validationMessage 取出校验错误的提示文本
func validationMessage(err error) (string, bool) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	return "", false
}
