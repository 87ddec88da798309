package model

// MediaKind 附件媒体类型
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Attachment 提交附件，一条附件只属于一个提交
type Attachment struct {
	BaseModel

	SubmissionID int64       `gorm:"index;not null" json:"submission_id"`
	Submission   *Submission `gorm:"foreignKey:SubmissionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`

	Field        string    `gorm:"size:64;not null" json:"field"`                    // 表单字段名，如 cash_photo
	StoredPath   string    `gorm:"size:512;uniqueIndex;not null" json:"stored_path"` // 相对存储根目录，如 20240101120000/a.jpg
	OriginalName string    `gorm:"size:255" json:"original_name"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	Kind         MediaKind `gorm:"size:20;not null" json:"kind"`
	SizeBytes    int64     `json:"size_bytes"`
}

func (Attachment) TableName() string {
	return "attachments"
}
