package identity

import (
	"strings"
	"time"
)

// Author is the persisted record of an anonymous author hash.
type Author struct {
	Hash       string     `gorm:"column:hash;primaryKey;size:190;not null"`
	LastPostAt *time.Time `gorm:"column:last_post_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing author hashes.
func (Author) TableName() string {
	return "authors"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
