package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"civicreport/internal/model"
)

// UserRepository defines persistence operations.
type UserRepository interface {
	// FindOrCreateByEmail inserts the user unless the email is already
	// registered and returns the stored row either way.
	FindOrCreateByEmail(ctx context.Context, email string, now time.Time) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindOrCreateByEmail(ctx context.Context, email string, now time.Time) (*model.User, error) {
	candidate := model.User{Email: email, CreatedAt: now}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return nil, err
	}

	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
