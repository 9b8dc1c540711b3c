package model

import "time"

// EmailOTP is the single outstanding one-time code challenge for an email.
// Only a bcrypt hash of the code is stored.
type EmailOTP struct {
	Email     string    `gorm:"primaryKey;size:255"`
	CodeHash  string    `gorm:"size:100;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table created by the migrations.
func (EmailOTP) TableName() string {
	return "email_otps"
}

// Expired reports whether the challenge can no longer be redeemed at now.
func (o *EmailOTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
