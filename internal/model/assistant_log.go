package model

// AssistantCallLog 助手调用日志
type AssistantCallLog struct {
	BaseModel

	UserID int64 `gorm:"index;comment:调用人ID"`

	// 调用信息
	Provider  string `gorm:"size:32;index;comment:提供者(gemini/http)"`
	ModelName string `gorm:"size:64;comment:模型名称"`

	// 用量统计
	HistoryTurns int `gorm:"default:0;comment:携带的历史轮数"`
	MessageChars int `gorm:"default:0;comment:提问字符数"`
	ReplyChars   int `gorm:"default:0;comment:回复字符数"`

	DurationMs int64 `gorm:"comment:耗时(毫秒)"`

	// 状态
	Status   string `gorm:"size:32;index;default:success;comment:状态(success/failed)"`
	ErrorMsg string `gorm:"size:1024;comment:错误信息"`
}

func (AssistantCallLog) TableName() string {
	return "assistant_call_logs"
}

// ==================== 状态常量 ====================

const (
	AssistantCallSuccess = "success"
	AssistantCallFailed  = "failed"
)
