package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"hiremote_portal/internal/model"
)

// ==================== 接口定义 ====================

// StorageProvider 存储提供者接口
// key 一律为相对存储根目录、以 / 分隔的路径，如 20240101120000/cash.jpg
type StorageProvider interface {
	// Save 写入文件，key 已存在时返回 fs.ErrExist
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)

	// Open 读取文件
	Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Exists 文件是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Delete 删除文件，不存在时不报错
	Delete(ctx context.Context, key string) error
}

// ObjectInfo 文件元信息
type ObjectInfo struct {
	Size        int64
	ContentType string
	ModTime     time.Time
}

// StoredFile 一次上传落盘的结果
type StoredFile struct {
	Field        string          `json:"field"`
	StoredName   string          `json:"stored_name"`
	OriginalName string          `json:"original_name"`
	MimeType     string          `json:"mime"`
	Kind         model.MediaKind `json:"kind"`
	Size         int64           `json:"size"`
}

// ==================== 配置 ====================

type StorageConfig struct {
	Provider  string // "s3" | "local"
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // 自定义端点 (MinIO、COS 等 S3 兼容服务)
	BasePath  string // local: 根目录; s3: key 前缀
}

// ==================== 工厂方法 ====================

func NewStorageProvider(cfg StorageConfig) (StorageProvider, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Storage(cfg)
	case "local", "":
		return NewLocalStorage(cfg)
	default:
		return nil, fmt.Errorf("不支持的存储提供者: %s", cfg.Provider)
	}
}

// ==================== StorageService ====================

// AllowedExtensions 允许上传的扩展名
var AllowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"mp4": true, "mov": true, "avi": true,
	"pdf": true, "doc": true, "docx": true, "txt": true,
}

// batchLayout 上传批次目录的时间格式
const batchLayout = "20060102150405"

// StorageService 存储服务（包装 StorageProvider，负责命名、校验与类型识别）
type StorageService struct {
	provider StorageProvider
	config   StorageConfig
	now      func() time.Time
}

// NewStorageService 创建存储服务
func NewStorageService(cfg StorageConfig) (*StorageService, error) {
	provider, err := NewStorageProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewStorageServiceWithProvider(provider, cfg), nil
}

// NewStorageServiceWithProvider 使用现成的 Provider 创建存储服务
func NewStorageServiceWithProvider(provider StorageProvider, cfg StorageConfig) *StorageService {
	return &StorageService{
		provider: provider,
		config:   cfg,
		now:      time.Now,
	}
}

// GetProvider 获取底层 Provider
func (s *StorageService) GetProvider() StorageProvider {
	return s.provider
}

// NewBatch 生成一个新的批次目录名（UTC 时间戳）
func (s *StorageService) NewBatch() string {
	return s.now().UTC().Format(batchLayout)
}

// SaveUpload 保存一个表单文件到批次目录
func (s *StorageService) SaveUpload(ctx context.Context, batch, field string, fh *multipart.FileHeader) (*StoredFile, error) {
	name := SanitizeFilename(fh.Filename)
	if name == "" || !AllowedFile(name) {
		shown := name
		if shown == "" {
			shown = fh.Filename
		}
		return nil, newValidationError("Unsupported file type for %s", shown)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer f.Close()

	return s.Save(ctx, batch, field, name, f)
}

// Save 保存任意数据流到批次目录
// name 必须已经过 SanitizeFilename 处理
func (s *StorageService) Save(ctx context.Context, batch, field, name string, r io.Reader) (*StoredFile, error) {
	// 读取头部用于内容识别，再拼回完整数据流
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	head = head[:n]
	mimeType, kind := DetectMedia(head, name)
	body := io.MultiReader(bytes.NewReader(head), r)

	key := path.Join(batch, name)
	size, err := s.provider.Save(ctx, key, body, mimeType)
	if errors.Is(err, fs.ErrExist) {
		// 同一秒内同名文件，加短前缀避免覆盖
		key = path.Join(batch, uuid.New().String()[:8]+"_"+name)
		size, err = s.provider.Save(ctx, key, body, mimeType)
	}
	if err != nil {
		return nil, err
	}

	return &StoredFile{
		Field:        field,
		StoredName:   key,
		OriginalName: name,
		MimeType:     mimeType,
		Kind:         kind,
		Size:         size,
	}, nil
}

// Open 读取文件，key 会先经过路径校验
func (s *StorageService) Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, nil, err
	}
	return s.provider.Open(ctx, key)
}

// Delete 删除文件
func (s *StorageService) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.provider.Delete(ctx, key)
}

// DeleteAll 尽力删除一组文件，返回第一个错误
func (s *StorageService) DeleteAll(ctx context.Context, files []*StoredFile) error {
	var first error
	for _, f := range files {
		if err := s.Delete(ctx, f.StoredName); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ==================== 路径与文件名 ====================

// ValidateKey 校验相对路径
// 拒绝空路径、绝对路径、.. 段、反斜杠与 NUL
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidPath
	}
	if strings.ContainsRune(key, 0) || strings.Contains(key, "\\") {
		return ErrPathEscapes
	}
	if strings.HasPrefix(key, "/") || filepath.IsAbs(key) || filepath.VolumeName(key) != "" {
		return ErrPathEscapes
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return ErrPathEscapes
		}
		if seg == "" || seg == "." {
			return ErrInvalidPath
		}
	}
	return nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename 生成安全文件名
// 路径分隔符视为空白，空白折叠为下划线，只保留字母数字与 _.-，去掉首尾的 . 和 _
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// AllowedFile 扩展名是否在白名单内
func AllowedFile(name string) bool {
	idx := strings.LastIndex(name, ".")
	if idx == -1 {
		return false
	}
	return AllowedExtensions[strings.ToLower(name[idx+1:])]
}

// DetectMedia 识别附件的 MIME 与媒体类型
// MIME 只取自扩展名白名单，内容识别仅用于校验：
// 图片/视频扩展名的内容与之不符时降级为文档，下载时不再内联展示
func DetectMedia(head []byte, name string) (string, model.MediaKind) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	mimeType := ContentTypeFor(name)

	var kind model.MediaKind
	switch ext {
	case "png", "jpg", "jpeg", "gif":
		kind = model.MediaImage
	case "mp4", "mov", "avi":
		kind = model.MediaVideo
	default:
		return mimeType, model.MediaDocument
	}

	sniffed := mimetype.Detect(head)
	if sniffed.Is("application/octet-stream") {
		return mimeType, kind
	}
	// SVG 可携带脚本
	if sniffed.Is("image/svg+xml") {
		return mimeType, model.MediaDocument
	}
	family := string(kind) + "/"
	for mt := sniffed; mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), family) {
			return mimeType, kind
		}
	}
	return mimeType, model.MediaDocument
}

// ContentTypeFor 按扩展名白名单给出下载时使用的 Content-Type
func ContentTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if mt, ok := extensionMime[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Inline 附件能否在浏览器中内联展示，媒体类型与 Content-Type 须同为图片或视频
func Inline(kind model.MediaKind, contentType string) bool {
	switch kind {
	case model.MediaImage, model.MediaVideo:
		return strings.HasPrefix(contentType, string(kind)+"/")
	}
	return false
}

var extensionMime = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":  "text/plain",
}

// ==================== 本地存储 ====================

// LocalStorage 本地磁盘存储，文件布局为 root/<批次>/<文件名>
type LocalStorage struct {
	root string
}

func NewLocalStorage(cfg StorageConfig) (*LocalStorage, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "./storage/uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	// 根目录本身可以是符号链接，以真实路径为准
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("解析存储目录失败: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

// Root 存储根目录（真实路径）
func (s *LocalStorage) Root() string {
	return s.root
}

// Resolve 将 key 解析为根目录内的真实路径
// 符号链接解析后落在根目录外同样视为越界
func (s *LocalStorage) Resolve(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if !withinRoot(s.root, full) {
		return "", ErrPathEscapes
	}

	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !withinRoot(s.root, real) {
		return "", ErrPathEscapes
	}
	return real, nil
}

func (s *LocalStorage) Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("创建批次目录失败: %w", err)
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return 0, err
	}
	if !withinRoot(s.root, realDir) {
		return 0, ErrPathEscapes
	}

	f, err := os.OpenFile(filepath.Join(realDir, filepath.Base(full)), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return 0, fmt.Errorf("写入文件失败: %w", err)
	}
	return n, nil
}

func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	real, err := s.Resolve(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(real)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}

	return f, &ObjectInfo{
		Size:        st.Size(),
		ContentType: ContentTypeFor(real),
		ModTime:     st.ModTime(),
	}, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Resolve(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	real, err := s.Resolve(key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(real); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	// 批次目录空了就顺手删掉，非空时 Remove 会失败，忽略即可
	if dir := filepath.Dir(real); dir != s.root {
		_ = os.Remove(dir)
	}
	return nil
}

// Batch 本地批次目录信息
type Batch struct {
	Name    string
	ModTime time.Time
	Keys    []string
}

// ListBatches 列出根目录下的批次目录及其文件
func (s *LocalStorage) ListBatches(ctx context.Context) ([]Batch, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var batches []Batch
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(batchLayout, e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, e.Name()))
		if err != nil {
			continue
		}
		b := Batch{Name: e.Name(), ModTime: info.ModTime()}
		for _, f := range files {
			if f.Type().IsRegular() {
				b.Keys = append(b.Keys, path.Join(e.Name(), f.Name()))
			}
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// withinRoot 判断 p 是否位于 root 内（含 root 本身之下的文件）
func withinRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// ==================== S3 实现 ====================

type S3Storage struct {
	client   *s3.Client
	bucket   string
	basePath string
}

func NewS3Storage(cfg StorageConfig) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:   client,
		bucket:   cfg.Bucket,
		basePath: strings.Trim(cfg.BasePath, "/"),
	}, nil
}

func (s *S3Storage) objectKey(key string) string {
	if s.basePath == "" {
		return key
	}
	return s.basePath + "/" + key
}

func (s *S3Storage) Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fs.ErrExist
	}

	// PutObject 需要可 Seek 的 Body 才能计算签名，上传文件先读入内存
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("读取上传文件失败: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("上传S3失败: %w", err)
	}
	return int64(len(data)), nil
}

func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("读取S3失败: %w", err)
	}

	info := &ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return out.Body, info, nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}
