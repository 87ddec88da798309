package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"hiremote_portal/internal/service"
)

// BatchStore 可枚举批次目录的存储
type BatchStore interface {
	ListBatches(ctx context.Context) ([]service.Batch, error)
	Delete(ctx context.Context, key string) error
}

// PathIndex 已登记的附件路径
type PathIndex interface {
	StoredPaths(ctx context.Context) ([]string, error)
}

// ==================== CleanupTask 孤儿文件清理 ====================

// CleanupTask 清理上传中断留下的、未被任何附件引用的文件
type CleanupTask struct {
	store  BatchStore
	index  PathIndex
	logger *zap.Logger
	Cron   *cron.Cron

	// 批次目录至少闲置多久才参与清理，避免误删正在写入的上传
	minAge time.Duration
	now    func() time.Time
}

// CleanupResult 单次清理结果
type CleanupResult struct {
	Batches int // 扫描的批次数
	Removed int // 删除的文件数
	Failed  int // 删除失败的文件数
}

// NewCleanupTask 创建清理任务
func NewCleanupTask(store BatchStore, index PathIndex, logger *zap.Logger) *CleanupTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupTask{
		store:  store,
		index:  index,
		logger: logger,
		Cron:   cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		minAge: time.Hour,
		now:    time.Now,
	}
}

// SetMinAge 设置最小闲置时长
func (t *CleanupTask) SetMinAge(d time.Duration) {
	t.minAge = d
}

// Start 按 cron 表达式启动定时清理（6 段，含秒）
func (t *CleanupTask) Start(expr string) error {
	_, err := t.Cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := t.Run(ctx); err != nil {
			t.logger.Error("[Cleanup] 清理失败", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("无法注册清理任务 %q: %w", expr, err)
	}

	t.Cron.Start()
	t.logger.Info("[Cleanup] 孤儿文件清理任务已启动", zap.String("cron", expr))
	return nil
}

// Stop 停止定时器并等待正在执行的清理结束
func (t *CleanupTask) Stop() {
	<-t.Cron.Stop().Done()
}

// Run 执行一次清理
func (t *CleanupTask) Run(ctx context.Context) (*CleanupResult, error) {
	batches, err := t.store.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("枚举批次目录失败: %w", err)
	}

	paths, err := t.index.StoredPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询附件路径失败: %w", err)
	}
	known := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		known[p] = struct{}{}
	}

	res := &CleanupResult{}
	cutoff := t.now().Add(-t.minAge)
	for _, b := range batches {
		if b.ModTime.After(cutoff) {
			continue
		}
		res.Batches++

		for _, key := range b.Keys {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if _, ok := known[key]; ok {
				continue
			}
			if err := t.store.Delete(ctx, key); err != nil {
				res.Failed++
				t.logger.Warn("[Cleanup] 删除孤儿文件失败", zap.String("key", key), zap.Error(err))
				continue
			}
			res.Removed++
		}
	}

	if res.Removed > 0 || res.Failed > 0 {
		t.logger.Info("[Cleanup] 清理完成",
			zap.Int("batches", res.Batches),
			zap.Int("removed", res.Removed),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}
