package reputation

import "time"

// EventKind classifies an entry in the reputation event ledger.
type EventKind string

const (
	EventStrikeBlur EventKind = "strike_blur"
	EventStrikeHide EventKind = "strike_hide"
	EventUpvote     EventKind = "upvote"
	EventBookmark   EventKind = "bookmark"
)

// Record is the per-author aggregate. All counters are mutated with in-database increments.
type Record struct {
	AuthorHash        string    `gorm:"column:author_hash;primaryKey;size:190;not null"`
	Reputation        int       `gorm:"column:reputation;not null;default:0"`
	StrikeCount       int       `gorm:"column:strike_count;not null;default:0"`
	PostCount         int       `gorm:"column:post_count;not null;default:0"`
	CommentCount      int       `gorm:"column:comment_count;not null;default:0"`
	UpvotesReceived   int       `gorm:"column:upvotes_received;not null;default:0"`
	BookmarksReceived int       `gorm:"column:bookmarks_received;not null;default:0"`
	JoinedAt          time.Time `gorm:"column:joined_at;not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "reputation"
}

// Event is the idempotency ledger: a delta is applied at most once per EventKey.
type Event struct {
	EventKey   string    `gorm:"column:event_key;primaryKey;size:190;not null"`
	AuthorHash string    `gorm:"column:author_hash;size:190;not null;index"`
	Kind       EventKind `gorm:"column:kind;size:32;not null"`
	Delta      int       `gorm:"column:delta;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "reputation_events"
}
