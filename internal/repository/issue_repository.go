package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"civicreport/internal/model"
)

// IssueRepository defines issue persistence operations.
type IssueRepository interface {
	Create(ctx context.Context, issue *model.Issue) error
	List(ctx context.Context) ([]model.Issue, error)
	// MarkResolved flips an open issue owned by userID to resolved and
	// returns the number of rows changed.
	MarkResolved(ctx context.Context, id, userID uint, at time.Time) (int64, error)
	// CountOwned counts issues with id owned by userID, whatever their status.
	CountOwned(ctx context.Context, id, userID uint) (int64, error)
}

type issueRepository struct {
	db *gorm.DB
}

// NewIssueRepository builds a GORM-backed repository.
func NewIssueRepository(db *gorm.DB) IssueRepository {
	return &issueRepository{db: db}
}

func (r *issueRepository) Create(ctx context.Context, issue *model.Issue) error {
	return r.db.WithContext(ctx).Create(issue).Error
}

func (r *issueRepository) List(ctx context.Context) ([]model.Issue, error) {
	issues := []model.Issue{}
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *issueRepository) MarkResolved(ctx context.Context, id, userID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Issue{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, model.IssueStatusOpen).
		Updates(map[string]interface{}{
			"status":      model.IssueStatusResolved,
			"resolved_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *issueRepository) CountOwned(ctx context.Context, id, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Issue{}).
		Where("id = ? AND user_id = ?", id, userID).
		Count(&n).Error
	return n, err
}
