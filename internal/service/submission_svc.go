package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"hiremote_portal/internal/model"
	"hiremote_portal/internal/repository"
	"hiremote_portal/pkg/metrics"
)

// ShiftFields 交班包必须包含的三个文件字段
var ShiftFields = []string{"scratcher_video", "cash_photo", "sales_photo"}

// ReportFileField 报告附件字段
const ReportFileField = "report_file"

// RecentShiftLimit 员工看板展示的最近交班数
const RecentShiftLimit = 5

// dateLayout 筛选日期格式（HTML date input）
const dateLayout = "2006-01-02"

// ==================== SubmissionService 提交服务 ====================

// SubmissionService 交班包 / 报告 提交与查询
type SubmissionService struct {
	uow         *repository.SubmissionUnitOfWork
	submissions repository.SubmissionRepository
	attachments repository.AttachmentRepository
	storage     *StorageService
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewSubmissionService 创建提交服务，metrics 可为 nil
func NewSubmissionService(
	uow *repository.SubmissionUnitOfWork,
	storage *StorageService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		uow:         uow,
		submissions: uow.Submissions,
		attachments: uow.Attachments,
		storage:     storage,
		metrics:     m,
		logger:      logger,
	}
}

// ==================== 提交 ====================

// SubmitShift 员工提交交班包
// 三个文件缺一不可；任一文件校验或写入失败时，已写入的文件会被删除且不落库
func (s *SubmissionService) SubmitShift(ctx context.Context, user *model.User, notes string, files map[string]*multipart.FileHeader) (*model.Submission, error) {
	if user == nil || user.Role != model.RoleEmployee {
		return nil, ErrForbidden
	}

	for _, field := range ShiftFields {
		if fh := files[field]; fh == nil || fh.Filename == "" {
			return nil, newValidationError("All three files are required for end-of-shift upload.")
		}
	}

	batch := s.storage.NewBatch()
	saved := make([]*StoredFile, 0, len(ShiftFields))
	for _, field := range ShiftFields {
		stored, err := s.storage.SaveUpload(ctx, batch, field, files[field])
		if err != nil {
			s.discard(ctx, saved)
			return nil, err
		}
		saved = append(saved, stored)
	}

	payload := map[string]interface{}{
		"files": saved,
		"notes": notes,
	}
	return s.persist(ctx, user, model.CategoryShift, "", notes, payload, saved)
}

// SubmitReport 经理提交日报 / 周报 / 月报，附件可选
func (s *SubmissionService) SubmitReport(ctx context.Context, user *model.User, reportType, summary, notes string, file *multipart.FileHeader) (*model.Submission, error) {
	if user == nil || user.Role != model.RoleManager {
		return nil, ErrForbidden
	}

	category, err := ParseReportType(reportType)
	if err != nil {
		return nil, err
	}

	saved := []*StoredFile{}
	if file != nil && file.Filename != "" {
		stored, err := s.storage.SaveUpload(ctx, s.storage.NewBatch(), ReportFileField, file)
		if err != nil {
			return nil, err
		}
		saved = append(saved, stored)
	}

	payload := map[string]interface{}{
		"summary": summary,
		"files":   saved,
	}
	return s.persist(ctx, user, category, summary, notes, payload, saved)
}

// ParseReportType 解析报告类型，空值视为 daily
func ParseReportType(reportType string) (model.Category, error) {
	reportType = strings.ToLower(strings.TrimSpace(reportType))
	if reportType == "" {
		return model.CategoryDaily, nil
	}
	category := model.Category(reportType)
	if !category.IsReport() {
		return "", newValidationError("Unknown report type %q.", reportType)
	}
	return category, nil
}

// persist 在一个事务中写入提交及附件，失败时清理已写入的文件
func (s *SubmissionService) persist(
	ctx context.Context,
	user *model.User,
	category model.Category,
	summary, notes string,
	payload map[string]interface{},
	saved []*StoredFile,
) (*model.Submission, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.discard(ctx, saved)
		return nil, fmt.Errorf("序列化提交内容失败: %w", err)
	}

	submission := &model.Submission{
		AuthorID:   user.ID,
		AuthorName: user.Name,
		StoreID:    user.StoreID,
		Category:   category,
		Summary:    summary,
		Notes:      notes,
		Payload:    datatypes.JSON(raw),
	}
	var total int64
	for _, f := range saved {
		submission.Attachments = append(submission.Attachments, model.Attachment{
			Field:        f.Field,
			StoredPath:   f.StoredName,
			OriginalName: f.OriginalName,
			MimeType:     f.MimeType,
			Kind:         f.Kind,
			SizeBytes:    f.Size,
		})
		total += f.Size
	}

	err = s.uow.Transaction(ctx, func(uow *repository.SubmissionUnitOfWork) error {
		return uow.Submissions.Create(ctx, submission)
	})
	if err != nil {
		s.discard(ctx, saved)
		return nil, fmt.Errorf("保存提交失败: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Submissions.WithLabelValues(string(category)).Inc()
		s.metrics.UploadBytes.Add(float64(total))
	}
	s.logger.Info("提交已保存",
		zap.Int64("submission_id", submission.ID),
		zap.Int64("user_id", user.ID),
		zap.String("category", string(category)),
		zap.Int("files", len(saved)),
		zap.Int64("bytes", total),
	)
	return submission, nil
}

// discard 删除本次请求已写入的文件
func (s *SubmissionService) discard(ctx context.Context, saved []*StoredFile) {
	if len(saved) == 0 {
		return
	}
	if err := s.storage.DeleteAll(ctx, saved); err != nil {
		s.logger.Warn("清理上传文件失败", zap.Error(err))
	}
}

// ==================== 查询 ====================

// SubmissionQuery 列表筛选参数（来自查询串）
type SubmissionQuery struct {
	StoreNumber string `form:"store_number" json:"store_number"`
	Employee    string `form:"employee" json:"employee"`
	Category    string `form:"category" json:"category"`
	Start       string `form:"start" json:"start"`
	End         string `form:"end" json:"end"`
	Limit       int    `form:"limit" json:"limit"`
}

// Scope 按查看者角色收敛筛选条件，返回实际生效的查询
// 客户只能看本门店；员工只能看自己的提交
func (q SubmissionQuery) Scope(viewer *model.User) SubmissionQuery {
	switch viewer.Role {
	case model.RoleClient:
		q.StoreNumber = viewer.StoreNumber()
	case model.RoleEmployee:
		q.StoreNumber = viewer.StoreNumber()
		q.Employee = viewer.Name
	}
	return q
}

// List 按查看者权限查询提交，最新在前
func (s *SubmissionService) List(ctx context.Context, viewer *model.User, query SubmissionQuery) ([]model.Submission, SubmissionQuery, error) {
	if viewer == nil || !viewer.Role.Valid() {
		return nil, query, ErrForbidden
	}

	effective := query.Scope(viewer)
	filter, err := s.buildFilter(effective)
	if err != nil {
		return nil, effective, err
	}

	// 门店以 ID 强制收敛，不依赖 Store 是否预加载
	switch viewer.Role {
	case model.RoleClient:
		filter.StoreID = viewer.StoreID
		filter.StoreNumber = ""
	case model.RoleEmployee:
		filter.StoreID = viewer.StoreID
		filter.StoreNumber = ""
		filter.AuthorID = viewer.ID
		filter.AuthorName = ""
	}

	submissions, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, effective, fmt.Errorf("查询提交失败: %w", err)
	}
	return submissions, effective, nil
}

func (s *SubmissionService) buildFilter(q SubmissionQuery) (repository.SubmissionFilter, error) {
	filter := repository.SubmissionFilter{
		StoreNumber: strings.TrimSpace(q.StoreNumber),
		AuthorName:  strings.TrimSpace(q.Employee),
		Limit:       q.Limit,
	}

	if c := strings.ToLower(strings.TrimSpace(q.Category)); c != "" {
		category := model.Category(c)
		if !category.Valid() {
			return filter, newValidationError("Unknown category %q.", q.Category)
		}
		filter.Category = category
	}

	if q.Start != "" {
		start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(q.Start), time.UTC)
		if err != nil {
			return filter, newValidationError("Invalid start date %q.", q.Start)
		}
		filter.Start = start
	}
	if q.End != "" {
		end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(q.End), time.UTC)
		if err != nil {
			return filter, newValidationError("Invalid end date %q.", q.End)
		}
		// 结束日期包含当天
		filter.End = end.Add(24*time.Hour - time.Nanosecond)
	}
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return filter, newValidationError("End date is before start date.")
	}
	return filter, nil
}

// RecentShifts 员工最近的交班记录
func (s *SubmissionService) RecentShifts(ctx context.Context, user *model.User, n int) ([]model.Submission, error) {
	if n <= 0 {
		n = RecentShiftLimit
	}
	return s.submissions.List(ctx, repository.SubmissionFilter{
		StoreID:  user.StoreID,
		AuthorID: user.ID,
		Category: model.CategoryShift,
		Limit:    n,
	})
}

// StoreNumbers 有提交记录的门店列表
func (s *SubmissionService) StoreNumbers(ctx context.Context) ([]string, error) {
	return s.submissions.StoreNumbers(ctx)
}

// ==================== 下载 ====================

// AuthorizeDownload 校验查看者能否下载指定文件
// 文件必须登记为附件；客户与员工只能下载本门店的附件
func (s *SubmissionService) AuthorizeDownload(ctx context.Context, viewer *model.User, key string) (*model.Attachment, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	attachment, err := s.attachments.GetByStoredPath(ctx, key)
	if err != nil {
		return nil, err
	}
	if attachment == nil || attachment.Submission == nil {
		return nil, ErrNotFound
	}

	switch viewer.Role {
	case model.RoleManager:
		return attachment, nil
	case model.RoleClient, model.RoleEmployee:
		if attachment.Submission.StoreID == viewer.StoreID {
			return attachment, nil
		}
	}
	return nil, ErrForbidden
}

// Download 鉴权后打开文件
func (s *SubmissionService) Download(ctx context.Context, viewer *model.User, key string) (io.ReadCloser, *ObjectInfo, *model.Attachment, error) {
	attachment, err := s.AuthorizeDownload(ctx, viewer, key)
	if err == nil {
		var rc io.ReadCloser
		var info *ObjectInfo
		rc, info, err = s.storage.Open(ctx, key)
		if err == nil {
			s.observeDownload("ok")
			return rc, info, attachment, nil
		}
	}

	switch {
	case errors.Is(err, ErrPathEscapes), errors.Is(err, ErrInvalidPath):
		s.observeDownload("rejected")
		s.logger.Warn("拒绝越界下载", zap.Int64("user_id", viewer.ID), zap.String("path", key))
	case errors.Is(err, ErrForbidden):
		s.observeDownload("forbidden")
	case errors.Is(err, ErrNotFound):
		s.observeDownload("not_found")
	default:
		s.observeDownload("error")
	}
	return nil, nil, nil, err
}

func (s *SubmissionService) observeDownload(result string) {
	if s.metrics != nil {
		s.metrics.Downloads.WithLabelValues(result).Inc()
	}
}
