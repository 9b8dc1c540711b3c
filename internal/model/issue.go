package model

import (
	"sort"
	"time"
)

// IssueType is the category a citizen picks when reporting.
type IssueType string

const (
	IssueTypeGarbage         IssueType = "garbage"
	IssueTypeBrokenFootpath  IssueType = "broken_footpath"
	IssueTypeBlockedFootpath IssueType = "blocked_footpath"
)

// issueTypes is the closed set accepted on creation. New categories are added here.
var issueTypes = map[IssueType]struct{}{
	IssueTypeGarbage:         {},
	IssueTypeBrokenFootpath:  {},
	IssueTypeBlockedFootpath: {},
}

// Valid reports whether t is a registered issue type.
func (t IssueType) Valid() bool {
	_, ok := issueTypes[t]
	return ok
}

// IssueTypes returns the registered types in lexical order.
func IssueTypes() []IssueType {
	out := make([]IssueType, 0, len(issueTypes))
	for t := range issueTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IssueStatus represents the lifecycle state of an issue.
type IssueStatus string

const (
	IssueStatusOpen     IssueStatus = "open"
	IssueStatusResolved IssueStatus = "resolved"
)

// Issue represents a civic problem reported with a photo and a location.
type Issue struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	Type        IssueType   `json:"type" gorm:"column:issue_type;size:64;not null"`
	Description *string     `json:"description" gorm:"type:text"`
	ImagePath   string      `json:"image_path" gorm:"size:512;not null"`
	Latitude    float64     `json:"latitude" gorm:"not null"`
	Longitude   float64     `json:"longitude" gorm:"not null"`
	Status      IssueStatus `json:"status" gorm:"size:16;not null;default:'open';index"`
	UserID      uint        `json:"user_id" gorm:"not null;index"`
	CreatedAt   time.Time   `json:"created_at" gorm:"not null;index"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

// TableName pins the table created by the migrations.
func (Issue) TableName() string {
	return "issues"
}
