// Package events announces issue lifecycle changes to other services.
package events

import (
	"context"
	"time"

	"civicreport/internal/model"
)

// Routing keys.
const (
	IssueCreated  = "issue.created"
	IssueResolved = "issue.resolved"
)

// IssueEvent is the JSON body published for every lifecycle change.
type IssueEvent struct {
	Event      string            `json:"event"`
	IssueID    uint              `json:"issue_id"`
	UserID     uint              `json:"user_id"`
	Type       model.IssueType   `json:"type,omitempty"`
	Status     model.IssueStatus `json:"status"`
	ImagePath  string            `json:"image_path,omitempty"`
	Latitude   float64           `json:"latitude,omitempty"`
	Longitude  float64           `json:"longitude,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewIssueCreated describes a freshly stored issue.
func NewIssueCreated(issue *model.Issue) IssueEvent {
	return IssueEvent{
		Event:      IssueCreated,
		IssueID:    issue.ID,
		UserID:     issue.UserID,
		Type:       issue.Type,
		Status:     issue.Status,
		ImagePath:  issue.ImagePath,
		Latitude:   issue.Latitude,
		Longitude:  issue.Longitude,
		OccurredAt: issue.CreatedAt,
	}
}

// NewIssueResolved describes an issue its owner marked resolved at.
func NewIssueResolved(issueID, userID uint, at time.Time) IssueEvent {
	return IssueEvent{
		Event:      IssueResolved,
		IssueID:    issueID,
		UserID:     userID,
		Status:     model.IssueStatusResolved,
		OccurredAt: at,
	}
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event IssueEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, IssueEvent) error { return nil }
func (NopPublisher) Close() error                              { return nil }
