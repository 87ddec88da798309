package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hiremote_portal/internal/api/dto"
	"hiremote_portal/internal/middleware"
	"hiremote_portal/internal/service"
)

// usageDateLayout 用量查询日期格式
const usageDateLayout = "2006-01-02"

// ==================== AssistantController 聊天助手 ====================

// AssistantController 聊天助手代理
type AssistantController struct {
	assistant *service.AssistantService
	logger    *zap.Logger
}

// NewAssistantController 创建助手控制器
func NewAssistantController(assistant *service.AssistantService, logger *zap.Logger) *AssistantController {
	return &AssistantController{assistant: assistant, logger: logger}
}

// Chat POST /api/assistant
// 请求 {message, history}，成功返回 {reply}，失败返回 {error}
func (ctl *AssistantController) Chat(c *gin.Context) {
	var req dto.AssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AssistantError{Error: "Invalid request body."})
		return
	}

	reply, err := ctl.assistant.Chat(c.Request.Context(), middleware.CurrentUser(c), req.Message, req.History)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			c.JSON(http.StatusBadRequest, dto.AssistantError{Error: msg})
			return
		}
		if errors.Is(err, service.ErrAssistantDisabled) {
			c.JSON(http.StatusServiceUnavailable, dto.AssistantError{Error: "Assistant is not configured."})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, dto.AssistantError{Error: "Assistant is unavailable right now. Please try again."})
		return
	}

	c.JSON(http.StatusOK, dto.AssistantResponse{Reply: reply})
}

// ==================== 用量统计 ====================

// Usage GET /api/v1/assistant/usage 当前用户用量
func (ctl *AssistantController) Usage(c *gin.Context) {
	since, until, ok := usageRange(c)
	if !ok {
		return
	}

	stats, err := ctl.assistant.Usage(c.Request.Context(), middleware.CurrentUser(c), since, until)
	if err != nil {
		ctl.logger.Error("查询助手用量失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "message": "success", "data": stats})
}

// DailyUsage GET /api/v1/assistant/usage/daily 全站按天用量（经理）
func (ctl *AssistantController) DailyUsage(c *gin.Context) {
	since, until, ok := usageRange(c)
	if !ok {
		return
	}

	daily, err := ctl.assistant.DailyUsage(c.Request.Context(), since, until)
	if err != nil {
		ctl.logger.Error("查询助手日用量失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "message": "success", "data": daily})
}

// usageRange 解析查询区间，默认最近 30 天，结束日期包含当天
func usageRange(c *gin.Context) (time.Time, time.Time, bool) {
	var q dto.UsageQuery
	_ = c.ShouldBindQuery(&q)

	now := time.Now().UTC()
	until := now
	since := now.AddDate(0, 0, -30)

	if q.Start != "" {
		t, err := time.ParseInLocation(usageDateLayout, q.Start, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "start 日期格式应为 YYYY-MM-DD"})
			return time.Time{}, time.Time{}, false
		}
		since = t
	}
	if q.End != "" {
		t, err := time.ParseInLocation(usageDateLayout, q.End, time.UTC)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "end 日期格式应为 YYYY-MM-DD"})
			return time.Time{}, time.Time{}, false
		}
		until = t.Add(24*time.Hour - time.Nanosecond)
	}
	if until.Before(since) {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "end 不能早于 start"})
		return time.Time{}, time.Time{}, false
	}
	return since, until, true
}
