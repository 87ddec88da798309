package model

// All 需要 AutoMigrate 的全部模型，顺序即建表顺序
func All() []interface{} {
	return []interface{}{
		&Store{},
		&User{},
		&Submission{},
		&Attachment{},
		&AssistantCallLog{},
	}
}
