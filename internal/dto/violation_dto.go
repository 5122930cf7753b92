package dto

import (
	"time"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// ViolationRequest is a client detected proctoring breach.
type ViolationRequest struct {
	Type     string                 `json:"type" validate:"required,oneof=TAB_SWITCH FULLSCREEN_EXIT WINDOW_BLUR COPY_ATTEMPT PASTE_ATTEMPT SCREENSHOT_ATTEMPT"`
	Details  string                 `json:"details" validate:"max=1000"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ViolationResponse tells the client where the participant stands after the report.
type ViolationResponse struct {
	ViolationID   uint   `json:"violation_id"`
	WarningNumber int    `json:"warning_number"`
	Threshold     int    `json:"threshold"`
	AutoSubmit    bool   `json:"auto_submit"`
	SessionStatus string `json:"session_status"`
}

// ViolationRecordResponse is an audit log entry.
type ViolationRecordResponse struct {
	ID            uint                   `json:"id"`
	ContestID     uint                   `json:"contest_id"`
	UserID        uint                   `json:"user_id"`
	Type          string                 `json:"type"`
	WarningNumber int                    `json:"warning_number"`
	Details       string                 `json:"details"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewViolationRecordResponse converts a violation model into a DTO.
func NewViolationRecordResponse(violation models.Violation) ViolationRecordResponse {
	metadata := map[string]interface{}(nil)
	if violation.Metadata != nil {
		metadata = map[string]interface{}(violation.Metadata)
	}
	return ViolationRecordResponse{
		ID:            violation.ID,
		ContestID:     violation.ContestID,
		UserID:        violation.UserID,
		Type:          string(violation.Type),
		WarningNumber: violation.WarningNumber,
		Details:       violation.Details,
		Metadata:      metadata,
		CreatedAt:     violation.CreatedAt,
	}
}

// NewViolationRecordResponseSlice converts a slice to DTOs.
func NewViolationRecordResponseSlice(items []models.Violation) []ViolationRecordResponse {
	out := make([]ViolationRecordResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewViolationRecordResponse(item))
	}
	return out
}

// ContestEvent is broadcast to live monitors and across nodes.
type ContestEvent struct {
	Type       string                 `json:"type"`
	ContestID  uint                   `json:"contest_id"`
	UserID     uint                   `json:"user_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Contest event types.
const (
	EventSessionStarted     = "session.started"
	EventSessionSubmitted   = "session.submitted"
	EventSessionTerminated  = "session.terminated"
	EventViolationReported  = "violation.reported"
	EventSubmissionGraded   = "submission.graded"
	EventLeaderboardUpdated = "leaderboard.updated"
)
