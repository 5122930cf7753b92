package models

import "time"

// Registration records that a user may take part in a contest.
type Registration struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ContestID    uint      `gorm:"not null;uniqueIndex:idx_registration_contest_user" json:"contest_id"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_registration_contest_user" json:"user_id"`
	RegisteredAt time.Time `gorm:"not null" json:"registered_at"`
}
