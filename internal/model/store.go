package model

// Store 门店
type Store struct {
	BaseModel
	Number string `gorm:"size:32;uniqueIndex;not null" json:"number"` // 门店编号，如 101、H1
	Name   string `gorm:"size:100;not null" json:"name"`
}

func (Store) TableName() string {
	return "stores"
}
