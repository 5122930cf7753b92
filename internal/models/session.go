package models

import "time"

// SessionStatus enumerates the states of a participant's timed attempt.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusTimedOut   SessionStatus = "TIMED_OUT"
)

// IsTerminal reports whether no further transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusTimedOut
}

// TerminationReason explains how a session reached its terminal state.
type TerminationReason string

const (
	TerminationNone        TerminationReason = ""
	TerminationCompleted   TerminationReason = "COMPLETED"
	TerminationTimeout     TerminationReason = "TIMEOUT"
	TerminationMalpractice TerminationReason = "MALPRACTICE"
)

// MCQAnswer is the option set a participant selected for one question.
type MCQAnswer struct {
	QuestionID      uint     `json:"question_id"`
	SelectedOptions []string `json:"selected_options"`
}

// ContestSession is the per participant, per contest attempt record.
type ContestSession struct {
	ID                   uint              `gorm:"primaryKey" json:"id"`
	ContestID            uint              `gorm:"not null;uniqueIndex:idx_session_contest_user" json:"contest_id"`
	UserID               uint              `gorm:"not null;uniqueIndex:idx_session_contest_user" json:"user_id"`
	StartedAt            time.Time         `gorm:"not null" json:"started_at"`
	SubmittedAt          *time.Time        `json:"submitted_at"`
	TotalTimeSpent       int64             `gorm:"default:0" json:"total_time_spent"`
	Status               SessionStatus     `gorm:"size:32;not null;index" json:"status"`
	TerminationReason    TerminationReason `gorm:"size:32" json:"termination_reason"`
	WarningCount         int               `gorm:"default:0" json:"warning_count"`
	QuestionTimes        map[string]int64  `gorm:"type:text;serializer:json" json:"question_times"`
	ProblemTimes         map[string]int64  `gorm:"type:text;serializer:json" json:"problem_times"`
	MCQSectionSeconds    int64             `gorm:"default:0" json:"mcq_section_seconds"`
	CodingSectionSeconds int64             `gorm:"default:0" json:"coding_section_seconds"`
	MCQAnswers           []MCQAnswer       `gorm:"type:text;serializer:json" json:"mcq_answers"`
	Version              int64             `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ElapsedSeconds returns the authoritative server-side elapsed time.
func (s ContestSession) ElapsedSeconds(now time.Time) int64 {
	elapsed := int64(now.Sub(s.StartedAt) / time.Second)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
