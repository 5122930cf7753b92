package models

import (
	"time"

	"gorm.io/datatypes"
)

// ViolationType enumerates proctoring breaches reported by the client.
type ViolationType string

const (
	ViolationTabSwitch         ViolationType = "TAB_SWITCH"
	ViolationFullscreenExit    ViolationType = "FULLSCREEN_EXIT"
	ViolationWindowBlur        ViolationType = "WINDOW_BLUR"
	ViolationCopyAttempt       ViolationType = "COPY_ATTEMPT"
	ViolationPasteAttempt      ViolationType = "PASTE_ATTEMPT"
	ViolationScreenshotAttempt ViolationType = "SCREENSHOT_ATTEMPT"
)

// Violation is an append-only audit entry for one reported breach.
type Violation struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ContestID     uint              `gorm:"not null;index:idx_violation_contest_user" json:"contest_id"`
	UserID        uint              `gorm:"not null;index:idx_violation_contest_user" json:"user_id"`
	Type          ViolationType     `gorm:"size:32;not null" json:"type"`
	WarningNumber int               `gorm:"not null" json:"warning_number"`
	Details       string            `gorm:"type:text" json:"details"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}
