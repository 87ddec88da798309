package dto

import (
	"hiremote_portal/internal/model"
	"hiremote_portal/internal/service"
)

// ==================== 认证 ====================

// TokenRequest API 登录请求
type TokenRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ==================== 助手 ====================

// AssistantRequest 聊天请求，与页面组件约定一致
type AssistantRequest struct {
	Message string             `json:"message"`
	History []service.ChatTurn `json:"history"`
}

// AssistantResponse 聊天回复
type AssistantResponse struct {
	Reply string `json:"reply"`
}

// AssistantError 聊天错误
type AssistantError struct {
	Error string `json:"error"`
}

// UsageQuery 用量查询区间，日期格式 YYYY-MM-DD（UTC）
type UsageQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

// ==================== 提交列表 ====================

// SubmissionListResponse 提交列表
type SubmissionListResponse struct {
	Filters service.SubmissionQuery `json:"filters"`
	Total   int                     `json:"total"`
	Items   []model.Submission      `json:"items"`
}
