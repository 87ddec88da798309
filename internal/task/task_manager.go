package task

import (
	"context"

	"go.uber.org/zap"
)

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理后台任务
// 目前只有本地存储的孤儿文件清理，S3 存储不启动
type TaskManager struct {
	cleanupTask *CleanupTask
	cleanupCron string
	logger      *zap.Logger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	// Store 为 nil 时不启动清理任务
	Store  BatchStore
	Index  PathIndex
	Logger *zap.Logger
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	// CleanupCron 清理任务 cron 表达式，空字符串表示关闭
	CleanupCron string
}

// DefaultConfig 默认配置：每天 03:30 (UTC) 清理一次
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		CleanupCron: "0 30 3 * * *",
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tm := &TaskManager{logger: logger}

	if cfg.CleanupCron != "" && deps.Store != nil && deps.Index != nil {
		tm.cleanupTask = NewCleanupTask(deps.Store, deps.Index, logger)
		tm.cleanupCron = cfg.CleanupCron
	}
	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() error {
	if tm.cleanupTask != nil {
		if err := tm.cleanupTask.Start(tm.cleanupCron); err != nil {
			return err
		}
	}
	tm.logger.Info("[TaskManager] 后台任务已启动", zap.Any("status", tm.Status()))
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	if tm.cleanupTask != nil {
		tm.cleanupTask.Stop()
	}
	tm.logger.Info("[TaskManager] 后台任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerCleanup 立即执行一次清理
func (tm *TaskManager) TriggerCleanup(ctx context.Context) (*CleanupResult, error) {
	if tm.cleanupTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.cleanupTask.Run(ctx)
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"cleanup": tm.cleanupTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)
