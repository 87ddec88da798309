package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"hiremote_portal/internal/model"
)

// ==================== SubmissionRepository 提交仓库 ====================

// SubmissionRepository 提交仓库接口
type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	GetByID(ctx context.Context, id int64) (*model.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)
	// StoreNumbers 有提交记录的门店编号（去重、升序）
	StoreNumbers(ctx context.Context) ([]string, error)
}

// SubmissionFilter 提交筛选条件，零值字段不参与过滤
type SubmissionFilter struct {
	StoreID     int64
	StoreNumber string
	AuthorID    int64
	AuthorName  string
	Category    model.Category
	// Start/End 为闭区间 [Start, End]
	Start time.Time
	End   time.Time
	Limit int
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository 创建提交仓库
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// Create 创建提交，Attachments 一并写入
func (r *submissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// GetByID 根据 ID 获取提交
func (r *submissionRepository) GetByID(ctx context.Context, id int64) (*model.Submission, error) {
	var submission model.Submission
	err := r.db.WithContext(ctx).
		Preload("Store").
		Preload("Attachments").
		First(&submission, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// List 按条件查询提交，最新在前
func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Preload("Store").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})

	if filter.StoreID > 0 {
		query = query.Where("submissions.store_id = ?", filter.StoreID)
	}
	if filter.StoreNumber != "" {
		query = query.
			Joins("JOIN stores ON stores.id = submissions.store_id").
			Where("stores.number = ?", filter.StoreNumber)
	}
	if filter.AuthorID > 0 {
		query = query.Where("submissions.author_id = ?", filter.AuthorID)
	}
	if filter.AuthorName != "" {
		query = query.Where("submissions.author_name = ?", filter.AuthorName)
	}
	if filter.Category != "" {
		query = query.Where("submissions.category = ?", filter.Category)
	}
	if !filter.Start.IsZero() {
		query = query.Where("submissions.created_at >= ?", filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		query = query.Where("submissions.created_at <= ?", filter.End.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var submissions []model.Submission
	err := query.
		Order("submissions.created_at DESC").
		Order("submissions.id DESC").
		Find(&submissions).Error
	return submissions, err
}

// StoreNumbers 有提交记录的门店编号
func (r *submissionRepository) StoreNumbers(ctx context.Context) ([]string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&model.Submission{}).
		Joins("JOIN stores ON stores.id = submissions.store_id").
		Distinct("stores.number").
		Order("stores.number ASC").
		Pluck("stores.number", &numbers).Error
	return numbers, err
}

// ==================== AttachmentRepository 附件仓库 ====================

// AttachmentRepository 附件仓库接口
type AttachmentRepository interface {
	// GetByStoredPath 根据存储路径查附件，预加载所属提交及门店
	GetByStoredPath(ctx context.Context, storedPath string) (*model.Attachment, error)
	// StoredPaths 全部已登记的存储路径
	StoredPaths(ctx context.Context) ([]string, error)
}

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository 创建附件仓库
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) GetByStoredPath(ctx context.Context, storedPath string) (*model.Attachment, error) {
	var attachment model.Attachment
	err := r.db.WithContext(ctx).
		Preload("Submission").
		Preload("Submission.Store").
		Where("stored_path = ?", storedPath).
		First(&attachment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (r *attachmentRepository) StoredPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&model.Attachment{}).Pluck("stored_path", &paths).Error
	return paths, err
}

// ==================== SubmissionUnitOfWork 工作单元 ====================

// SubmissionUnitOfWork 提交工作单元（事务）
type SubmissionUnitOfWork struct {
	db          *gorm.DB
	Submissions SubmissionRepository
	Attachments AttachmentRepository
}

// NewSubmissionUnitOfWork 创建工作单元
func NewSubmissionUnitOfWork(db *gorm.DB) *SubmissionUnitOfWork {
	return &SubmissionUnitOfWork{
		db:          db,
		Submissions: NewSubmissionRepository(db),
		Attachments: NewAttachmentRepository(db),
	}
}

// Transaction 执行事务
// fn 内只能使用 uow 上的仓库，SQLite 单连接下外部 db 会阻塞
func (u *SubmissionUnitOfWork) Transaction(ctx context.Context, fn func(uow *SubmissionUnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUow := &SubmissionUnitOfWork{
			db:          tx,
			Submissions: NewSubmissionRepository(tx),
			Attachments: NewAttachmentRepository(tx),
		}
		return fn(txUow)
	})
}
