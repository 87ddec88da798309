package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"hiremote_portal/internal/model"
)

// ==================== 仓储接口 ====================

// AssistantCallLogRepository 助手调用日志仓储接口
type AssistantCallLogRepository interface {
	Create(ctx context.Context, log *model.AssistantCallLog) error
	GetByID(ctx context.Context, id int64) (*model.AssistantCallLog, error)

	// 统计查询
	GetUsageByUser(ctx context.Context, userID int64, startTime, endTime time.Time) (*AssistantUsageStats, error)
	GetDailyUsage(ctx context.Context, startDate, endDate time.Time) ([]DailyAssistantUsage, error)
}

// ==================== 统计结构 ====================

// AssistantUsageStats 助手用量统计
type AssistantUsageStats struct {
	TotalCalls    int64   `json:"total_calls"`
	TotalMsgChars int64   `json:"total_message_chars"`
	TotalReplies  int64   `json:"total_reply_chars"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	SuccessCount  int64   `json:"success_count"`
	FailedCount   int64   `json:"failed_count"`
}

// DailyAssistantUsage 每日用量统计
type DailyAssistantUsage struct {
	Date       string `json:"date"`
	TotalCalls int64  `json:"total_calls"`
	FailedCall int64  `json:"failed_calls"`
}

// ==================== 仓储实现 ====================

type assistantCallLogRepo struct {
	db *gorm.DB
}

// NewAssistantCallLogRepository 创建助手调用日志仓储
func NewAssistantCallLogRepository(db *gorm.DB) AssistantCallLogRepository {
	return &assistantCallLogRepo{db: db}
}

func (r *assistantCallLogRepo) Create(ctx context.Context, log *model.AssistantCallLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *assistantCallLogRepo) GetByID(ctx context.Context, id int64) (*model.AssistantCallLog, error) {
	var log model.AssistantCallLog
	if err := r.db.WithContext(ctx).First(&log, id).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *assistantCallLogRepo) GetUsageByUser(ctx context.Context, userID int64, startTime, endTime time.Time) (*AssistantUsageStats, error) {
	var stats AssistantUsageStats

	query := r.db.WithContext(ctx).Model(&model.AssistantCallLog{}).Where("user_id = ?", userID)
	if !startTime.IsZero() {
		query = query.Where("created_at >= ?", startTime.UTC())
	}
	if !endTime.IsZero() {
		query = query.Where("created_at <= ?", endTime.UTC())
	}

	err := query.Select(`
		COUNT(*) as total_calls,
		COALESCE(SUM(message_chars), 0) as total_msg_chars,
		COALESCE(SUM(reply_chars), 0) as total_replies,
		COALESCE(AVG(duration_ms), 0) as avg_duration_ms,
		COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as success_count,
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed_count
	`).Scan(&stats).Error

	return &stats, err
}

func (r *assistantCallLogRepo) GetDailyUsage(ctx context.Context, startDate, endDate time.Time) ([]DailyAssistantUsage, error) {
	var stats []DailyAssistantUsage

	err := r.db.WithContext(ctx).Model(&model.AssistantCallLog{}).
		Where("created_at >= ? AND created_at <= ?", startDate.UTC(), endDate.UTC()).
		Select(`
			DATE(created_at) as date,
			COUNT(*) as total_calls,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed_call
		`).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&stats).Error

	return stats, err
}
