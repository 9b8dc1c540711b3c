package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"civicreport/internal/model"
)

// OTPRepository stores at most one outstanding challenge per email.
type OTPRepository interface {
	// Upsert replaces any challenge for the same email in one statement.
	Upsert(ctx context.Context, otp *model.EmailOTP) error
	FindByEmail(ctx context.Context, email string) (*model.EmailOTP, error)
	// Consume deletes the challenge only if it still carries codeHash.
	Consume(ctx context.Context, email, codeHash string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type otpRepository struct {
	db *gorm.DB
}

// NewOTPRepository builds a GORM-backed repository.
func NewOTPRepository(db *gorm.DB) OTPRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) Upsert(ctx context.Context, otp *model.EmailOTP) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"code_hash", "expires_at", "updated_at"}),
		}).
		Create(otp).Error
}

func (r *otpRepository) FindByEmail(ctx context.Context, email string) (*model.EmailOTP, error) {
	var otp model.EmailOTP
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&otp).Error; err != nil {
		return nil, err
	}
	return &otp, nil
}

func (r *otpRepository) Consume(ctx context.Context, email, codeHash string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("email = ? AND code_hash = ?", email, codeHash).
		Delete(&model.EmailOTP{})
	return res.RowsAffected, res.Error
}

func (r *otpRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.EmailOTP{})
	return res.RowsAffected, res.Error
}
