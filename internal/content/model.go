package content

import (
	"time"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/moderation"
)

// Post is a top-level anonymous message in a zone. It is also the thread root.
type Post struct {
	ID               string    `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	Body             string    `gorm:"column:body;type:text;not null" json:"body"`
	Zone             string    `gorm:"column:zone;size:64;not null;index:idx_posts_zone_created,priority:1" json:"zone"`
	AuthorHash       string    `gorm:"column:author_hash;size:190;not null;index" json:"author_hash"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;index:idx_posts_zone_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
	IsBlurred        bool      `gorm:"column:is_blurred;not null;default:false" json:"is_blurred"`
	IsHidden         bool      `gorm:"column:is_hidden;not null;default:false" json:"is_hidden"`
	ModerationReason *string   `gorm:"column:moderation_reason;size:190" json:"moderation_reason"`
	Toxicity         float64   `gorm:"column:toxicity;not null;default:0" json:"toxicity"`
	Locked           bool      `gorm:"column:locked;not null;default:false" json:"locked"`
	Score            int       `gorm:"column:score;not null;default:0" json:"score"`
	Upvotes          int       `gorm:"column:upvotes;not null;default:0" json:"upvotes"`
	Downvotes        int       `gorm:"column:downvotes;not null;default:0" json:"downvotes"`
	BookmarksCount   int       `gorm:"column:bookmarks_count;not null;default:0" json:"bookmarks_count"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// Comment is a reply inside a thread. Locking is a property of the parent Post.
type Comment struct {
	ID               string    `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	PostID           string    `gorm:"column:post_id;size:64;not null;index:idx_comments_post_created,priority:1" json:"post_id"`
	Body             string    `gorm:"column:body;type:text;not null" json:"body"`
	AuthorHash       string    `gorm:"column:author_hash;size:190;not null;index" json:"author_hash"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;index:idx_comments_post_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
	IsBlurred        bool      `gorm:"column:is_blurred;not null;default:false" json:"is_blurred"`
	IsHidden         bool      `gorm:"column:is_hidden;not null;default:false" json:"is_hidden"`
	ModerationReason *string   `gorm:"column:moderation_reason;size:190" json:"moderation_reason"`
	Toxicity         float64   `gorm:"column:toxicity;not null;default:0" json:"toxicity"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// Vote is one voter's current vote on a post.
type Vote struct {
	PostID    string    `gorm:"column:post_id;primaryKey;size:64;not null"`
	VoterHash string    `gorm:"column:voter_hash;primaryKey;size:190;not null"`
	Value     int       `gorm:"column:value;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// Bookmark records that an author saved a post.
type Bookmark struct {
	PostID     string    `gorm:"column:post_id;primaryKey;size:64;not null"`
	AuthorHash string    `gorm:"column:author_hash;primaryKey;size:190;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Bookmark) TableName() string {
	return "bookmarks"
}

func verdictColumns(verdict moderation.Verdict, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"is_blurred":        verdict.Blur,
		"is_hidden":         verdict.Hide,
		"moderation_reason": verdict.Reason,
		"toxicity":          verdict.Toxicity,
		"updated_at":        now,
	}
}

// RedactedFor clears the body of a hidden post unless viewer is its author.
func (p Post) RedactedFor(viewer string) Post {
	if p.IsHidden && p.AuthorHash != viewer {
		p.Body = ""
	}
	return p
}

// RedactedFor clears the body of a hidden comment unless viewer is its author.
func (c Comment) RedactedFor(viewer string) Comment {
	if c.IsHidden && c.AuthorHash != viewer {
		c.Body = ""
	}
	return c
}

// RedactChangeRow clears the body of a hidden post or comment row in a realtime
// change event. Subscribers are anonymous, so the author gets no exception.
func RedactChangeRow(table string, row map[string]any) {
	if table != (Post{}).TableName() && table != (Comment{}).TableName() {
		return
	}
	if hidden, _ := row["is_hidden"].(bool); hidden {
		row["body"] = ""
	}
}
