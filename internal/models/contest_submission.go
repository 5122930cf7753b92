package models

import "time"

// Verdict is the categorical outcome of grading a submission or a single case.
type Verdict string

const (
	VerdictPending             Verdict = "PENDING"
	VerdictAccepted            Verdict = "ACCEPTED"
	VerdictWrongAnswer         Verdict = "WRONG_ANSWER"
	VerdictTimeLimitExceeded   Verdict = "TIME_LIMIT_EXCEEDED"
	VerdictMemoryLimitExceeded Verdict = "MEMORY_LIMIT_EXCEEDED"
	VerdictRuntimeError        Verdict = "RUNTIME_ERROR"
	VerdictCompilationError    Verdict = "COMPILATION_ERROR"
)

// TestCaseResult is the graded outcome of one test case.
type TestCaseResult struct {
	TestCaseID   uint    `json:"test_case_id"`
	Position     int     `json:"position"`
	Hidden       bool    `json:"hidden"`
	Passed       bool    `json:"passed"`
	Verdict      Verdict `json:"verdict"`
	Points       float64 `json:"points"`
	Stdout       string  `json:"stdout,omitempty"`
	Stderr       string  `json:"stderr,omitempty"`
	TimeSeconds  float64 `json:"time_seconds"`
	MemoryKB     int64   `json:"memory_kb"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// ContestSubmission is one formal grading attempt. It is immutable once its verdict leaves PENDING.
type ContestSubmission struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	ContestID       uint             `gorm:"not null;index:idx_submission_contest_user" json:"contest_id"`
	UserID          uint             `gorm:"not null;index:idx_submission_contest_user" json:"user_id"`
	ProblemID       uint             `gorm:"not null;index" json:"problem_id"`
	Language        string           `gorm:"size:32;not null" json:"language"`
	Source          string           `gorm:"type:text" json:"source"`
	Verdict         Verdict          `gorm:"size:32;not null" json:"verdict"`
	Score           float64          `gorm:"default:0" json:"score"`
	TestcasesPassed int              `gorm:"default:0" json:"testcases_passed"`
	TestcasesTotal  int              `gorm:"default:0" json:"testcases_total"`
	Results         []TestCaseResult `gorm:"type:text;serializer:json" json:"results"`
	CompileOutput   string           `gorm:"type:text" json:"compile_output"`
	PartialFailure  bool             `gorm:"default:false" json:"partial_failure"`
	GradedAt        *time.Time       `json:"graded_at"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
