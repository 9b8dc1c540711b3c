package model

import "time"

// User is an identity proven by a verified email one-time code.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table created by the migrations.
func (User) TableName() string {
	return "users"
}
