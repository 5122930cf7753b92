package models

import "time"

// ProblemExample is a sample shown to participants in the statement.
type ProblemExample struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// TestCase is one graded input/output pair of a problem.
type TestCase struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	ProblemID      uint    `gorm:"not null;index" json:"problem_id"`
	Position       int     `gorm:"not null" json:"position"`
	Input          string  `gorm:"type:text" json:"input"`
	ExpectedOutput string  `gorm:"type:text" json:"expected_output"`
	Points         float64 `gorm:"default:0" json:"points"`
	Hidden         bool    `gorm:"default:false" json:"hidden"`
}

// Problem is a coding problem attached to a contest. Authoring happens elsewhere;
// the engine only reads it and bumps the submission counters.
type Problem struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	ContestID        uint             `gorm:"not null;index" json:"contest_id"`
	Title            string           `gorm:"size:255;not null" json:"title"`
	TimeLimitSeconds float64          `gorm:"default:2" json:"time_limit_seconds"`
	MemoryLimitKB    int              `gorm:"default:262144" json:"memory_limit_kb"`
	Examples         []ProblemExample `gorm:"type:text;serializer:json" json:"examples"`
	SubmissionCount  int64            `gorm:"default:0" json:"submission_count"`
	AcceptedCount    int64            `gorm:"default:0" json:"accepted_count"`
	TestCases        []TestCase       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// MaxScore is the sum of all test case points.
func (p Problem) MaxScore() float64 {
	var total float64
	for _, tc := range p.TestCases {
		total += tc.Points
	}
	return total
}
