package models

import "time"

// ResultStatus tracks the lifecycle of a scored outcome.
type ResultStatus string

const (
	ResultStatusRegistered ResultStatus = "REGISTERED"
	ResultStatusInProgress ResultStatus = "IN_PROGRESS"
	ResultStatusSubmitted  ResultStatus = "SUBMITTED"
	ResultStatusTimedOut   ResultStatus = "TIMED_OUT"
)

// IsFinal reports whether the result has been scored and may be ranked.
func (s ResultStatus) IsFinal() bool {
	return s == ResultStatusSubmitted || s == ResultStatusTimedOut
}

// MCQAnswerResult is the marked outcome of one answered question.
type MCQAnswerResult struct {
	QuestionID      uint     `json:"question_id"`
	SelectedOptions []string `json:"selected_options"`
	Correct         bool     `json:"correct"`
	Marks           float64  `json:"marks"`
}

// ProblemBest keeps the highest scoring submission for a problem.
type ProblemBest struct {
	ProblemID    uint      `json:"problem_id"`
	SubmissionID uint      `json:"submission_id"`
	Score        float64   `json:"score"`
	Verdict      Verdict   `json:"verdict"`
	Attempts     int       `json:"attempts"`
	Solved       bool      `json:"solved"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ContestResult is the scored outcome per (contest, user) that feeds the leaderboard.
type ContestResult struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	ContestID         uint              `gorm:"not null;uniqueIndex:idx_result_contest_user" json:"contest_id"`
	UserID            uint              `gorm:"not null;uniqueIndex:idx_result_contest_user" json:"user_id"`
	MCQScore          float64           `gorm:"default:0" json:"mcq_score"`
	MCQAnswers        []MCQAnswerResult `gorm:"type:text;serializer:json" json:"mcq_answers"`
	CodingScore       float64           `gorm:"default:0" json:"coding_score"`
	Problems          []ProblemBest     `gorm:"type:text;serializer:json" json:"problems"`
	TotalScore        float64           `gorm:"default:0;index" json:"total_score"`
	TimeTaken         int64             `gorm:"default:0" json:"time_taken"`
	Rank              *int              `json:"rank"`
	Status            ResultStatus      `gorm:"size:32;not null" json:"status"`
	TerminationReason TerminationReason `gorm:"size:32" json:"termination_reason"`
	SubmittedAt       *time.Time        `json:"submitted_at"`
	Version           int64             `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// CodingTotal sums the best score of every attempted problem.
func (r ContestResult) CodingTotal() float64 {
	var total float64
	for _, best := range r.Problems {
		total += best.Score
	}
	return total
}
