package dto

import (
	"time"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// CodeSubmissionRequest is the payload for run, check and formal submit.
type CodeSubmissionRequest struct {
	ProblemID uint   `json:"problem_id" validate:"required,gt=0"`
	Language  string `json:"language" validate:"required"`
	Source    string `json:"source" validate:"required,min=1,max=65536"`
	Input     string `json:"input" validate:"max=65536"`
}

// TestCaseResultResponse is one graded case. Hidden cases never carry program output.
type TestCaseResultResponse struct {
	Position     int     `json:"position"`
	Hidden       bool    `json:"hidden"`
	Passed       bool    `json:"passed"`
	Verdict      string  `json:"verdict,omitempty"`
	Points       float64 `json:"points"`
	Stdout       string  `json:"stdout,omitempty"`
	Stderr       string  `json:"stderr,omitempty"`
	TimeSeconds  float64 `json:"time_seconds"`
	MemoryKB     int64   `json:"memory_kb"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// NewTestCaseResultResponses converts per case results, stripping output of hidden cases.
func NewTestCaseResultResponses(results []models.TestCaseResult) []TestCaseResultResponse {
	out := make([]TestCaseResultResponse, 0, len(results))
	for _, result := range results {
		item := TestCaseResultResponse{
			Position:     result.Position,
			Hidden:       result.Hidden,
			Passed:       result.Passed,
			Verdict:      string(result.Verdict),
			Points:       result.Points,
			TimeSeconds:  result.TimeSeconds,
			MemoryKB:     result.MemoryKB,
			ErrorMessage: result.ErrorMessage,
		}
		if !result.Hidden {
			item.Stdout = result.Stdout
			item.Stderr = result.Stderr
		}
		out = append(out, item)
	}
	return out
}

// SubmissionResponse describes a formal graded submission.
type SubmissionResponse struct {
	ID              uint                     `json:"id"`
	ContestID       uint                     `json:"contest_id"`
	ProblemID       uint                     `json:"problem_id"`
	Language        string                   `json:"language"`
	Source          string                   `json:"source,omitempty"`
	Verdict         string                   `json:"verdict"`
	Score           float64                  `json:"score"`
	TestcasesPassed int                      `json:"testcases_passed"`
	TestcasesTotal  int                      `json:"testcases_total"`
	CompileOutput   string                   `json:"compile_output,omitempty"`
	PartialFailure  bool                     `json:"partial_failure"`
	Results         []TestCaseResultResponse `json:"results"`
	CreatedAt       time.Time                `json:"created_at"`
	GradedAt        *time.Time               `json:"graded_at"`
}

// NewSubmissionResponse builds a response DTO from a submission model.
func NewSubmissionResponse(submission models.ContestSubmission, includeSource bool) SubmissionResponse {
	response := SubmissionResponse{
		ID:              submission.ID,
		ContestID:       submission.ContestID,
		ProblemID:       submission.ProblemID,
		Language:        submission.Language,
		Verdict:         string(submission.Verdict),
		Score:           submission.Score,
		TestcasesPassed: submission.TestcasesPassed,
		TestcasesTotal:  submission.TestcasesTotal,
		CompileOutput:   submission.CompileOutput,
		PartialFailure:  submission.PartialFailure,
		Results:         NewTestCaseResultResponses(submission.Results),
		CreatedAt:       submission.CreatedAt,
		GradedAt:        submission.GradedAt,
	}
	if includeSource {
		response.Source = submission.Source
	}
	return response
}

// RunResponse is the outcome of an ungraded run.
type RunResponse struct {
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	Stdout         string  `json:"stdout"`
	Stderr         string  `json:"stderr"`
	CompileOutput  string  `json:"compile_output,omitempty"`
	Verdict        string  `json:"verdict"`
	Passed         *bool   `json:"passed,omitempty"`
	TimeSeconds    float64 `json:"time_seconds"`
	MemoryKB       int64   `json:"memory_kb"`
}

// CheckAllResponse is the self check breakdown across every case.
type CheckAllResponse struct {
	ProblemID      uint                     `json:"problem_id"`
	Verdict        string                   `json:"verdict"`
	Passed         int                      `json:"passed"`
	Total          int                      `json:"total"`
	Score          float64                  `json:"score"`
	MaxScore       float64                  `json:"max_score"`
	CompileOutput  string                   `json:"compile_output,omitempty"`
	PartialFailure bool                     `json:"partial_failure"`
	Results        []TestCaseResultResponse `json:"results"`
}
