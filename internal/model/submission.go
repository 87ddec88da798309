package model

import (
	"strings"

	"gorm.io/datatypes"
)

// Category 提交类别
type Category string

const (
	CategoryShift   Category = "shift" // 交班包
	CategoryDaily   Category = "daily"
	CategoryWeekly  Category = "weekly"
	CategoryMonthly Category = "monthly"
)

// ReportCategories 经理可提交的报告类型
var ReportCategories = []Category{CategoryDaily, CategoryWeekly, CategoryMonthly}

// Valid 是否为已知类别
func (c Category) Valid() bool {
	switch c {
	case CategoryShift, CategoryDaily, CategoryWeekly, CategoryMonthly:
		return true
	}
	return false
}

// IsReport 是否为周期报告
func (c Category) IsReport() bool {
	return c == CategoryDaily || c == CategoryWeekly || c == CategoryMonthly
}

// Label 页面展示名
func (c Category) Label() string {
	if c == CategoryShift {
		return "End of shift"
	}
	s := string(c)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Submission 员工交班包 / 经理报告
type Submission struct {
	BaseModel
	AuditMixin

	AuthorID int64 `gorm:"index;not null" json:"author_id"`
	Author   *User `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	// 提交时的作者姓名快照，员工筛选按此字段
	AuthorName string `gorm:"size:100;index;not null" json:"author_name"`

	StoreID int64  `gorm:"index;not null" json:"store_id"`
	Store   *Store `gorm:"foreignKey:StoreID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"store,omitempty"`

	Category Category `gorm:"size:20;index;not null" json:"category"`
	Summary  string   `gorm:"type:text" json:"summary"`
	Notes    string   `gorm:"type:text" json:"notes"`

	// 原始表单负载，页面不依赖它，仅留档
	Payload datatypes.JSON `json:"payload,omitempty"`

	Attachments []Attachment `gorm:"foreignKey:SubmissionID" json:"attachments"`
}

func (Submission) TableName() string {
	return "submissions"
}

// StoreNumber 门店编号，未预加载时为空
func (s *Submission) StoreNumber() string {
	if s.Store == nil {
		return ""
	}
	return s.Store.Number
}
