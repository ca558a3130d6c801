package models

import "time"

// Record is one durable key/value document. Keys are namespaced by prefix
// ("connection/", "session/").
type Record struct {
	Key       string    `gorm:"column:record_key;primaryKey;type:varchar(255)"`
	Value     string    `gorm:"column:record_value;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Record) TableName() string {
	return "kv_records"
}
