package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SeedFunc 写入初始数据，返回新建记录数
type SeedFunc func(ctx context.Context) (int, error)

// Initializer 数据库初始化器
// 依次执行：建表迁移 -> 预置数据 -> 行数统计
type Initializer struct {
	db     *gorm.DB
	models []interface{}
	seed   SeedFunc
	logger *zap.Logger
}

// InitOptions 初始化选项
type InitOptions struct {
	// 需要 AutoMigrate 的 Model
	Models []interface{}

	// 预置数据，为空时跳过
	Seed SeedFunc

	Logger *zap.Logger
}

// InitResult 初始化结果
type InitResult struct {
	Seeded int
	Rows   map[string]int64
}

// NewInitializer 创建初始化器
func NewInitializer(db *gorm.DB, opts InitOptions) *Initializer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Initializer{
		db:     db,
		models: opts.Models,
		seed:   opts.Seed,
		logger: opts.Logger,
	}
}

// Initialize 执行初始化
func (i *Initializer) Initialize(ctx context.Context) (*InitResult, error) {
	i.logger.Info("[DB] 开始数据库初始化...")
	start := time.Now()
	result := &InitResult{Rows: map[string]int64{}}

	// 1. 建表
	i.logger.Info(fmt.Sprintf("[DB] 1/3 AutoMigrate %d 个表...", len(i.models)))
	if len(i.models) > 0 {
		if err := i.db.WithContext(ctx).AutoMigrate(i.models...); err != nil {
			return nil, fmt.Errorf("AutoMigrate 失败: %w", err)
		}
	}

	// 2. 预置门店与账号
	if i.seed != nil {
		i.logger.Info("[DB] 2/3 写入预置数据...")
		n, err := i.seed(ctx)
		if err != nil {
			return nil, fmt.Errorf("写入预置数据失败: %w", err)
		}
		result.Seeded = n
	} else {
		i.logger.Info("[DB] 2/3 跳过预置数据")
	}

	// 3. 统计
	i.logger.Info("[DB] 3/3 统计各表行数...")
	if err := i.collectStats(ctx, result.Rows); err != nil {
		return nil, err
	}
	for table, n := range result.Rows {
		i.logger.Info("[DB] 表统计", zap.String("table", table), zap.Int64("rows", n))
	}

	i.logger.Info("[DB] 初始化完成",
		zap.Int("seeded", result.Seeded),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (i *Initializer) collectStats(ctx context.Context, rows map[string]int64) error {
	for _, m := range i.models {
		stmt := &gorm.Statement{DB: i.db}
		if err := stmt.Parse(m); err != nil {
			return fmt.Errorf("解析 Model 失败: %w", err)
		}

		var n int64
		if err := i.db.WithContext(ctx).Model(m).Count(&n).Error; err != nil {
			return fmt.Errorf("统计表 %s 失败: %w", stmt.Schema.Table, err)
		}
		rows[stmt.Schema.Table] = n
	}
	return nil
}
