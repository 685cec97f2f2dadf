package models

import (
	"time"

	"gorm.io/gorm"
)

// Attachment links a record to the entity it belongs to.
type Attachment struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	TenantID   uint           `gorm:"not null;index" json:"tenant_id"`
	EntityType EntityType     `gorm:"not null;size:16" json:"entity_type"`
	EntityID   uint           `gorm:"not null;index" json:"entity_id"`
	AuthorID   uint           `json:"author_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

type Note struct {
	Attachment
	Body string `gorm:"not null" json:"body"`
}

// Comment is a discussion post. Replies point at their root via ParentID.
type Comment struct {
	Attachment
	ParentID *uint     `gorm:"index" json:"parent_id"`
	Body     string    `gorm:"not null" json:"body"`
	Replies  []Comment `gorm:"-" json:"replies,omitempty"`
}

type Document struct {
	Attachment
	FileName    string `gorm:"not null" json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	StorageKey  string `gorm:"not null" json:"-"`
}
