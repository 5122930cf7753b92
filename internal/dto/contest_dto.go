package dto

import (
	"time"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// RegistrationResponse acknowledges a contest registration.
type RegistrationResponse struct {
	ContestID    uint      `json:"contest_id"`
	UserID       uint      `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SessionResponse describes a participant's timed attempt.
type SessionResponse struct {
	ID                uint       `json:"id"`
	ContestID         uint       `json:"contest_id"`
	UserID            uint       `json:"user_id"`
	StartedAt         time.Time  `json:"started_at"`
	SubmittedAt       *time.Time `json:"submitted_at"`
	Status            string     `json:"status"`
	TerminationReason string     `json:"termination_reason,omitempty"`
	WarningCount      int        `json:"warning_count"`
	RemainingSeconds  int64      `json:"remaining_seconds"`
	TotalTimeSpent    int64      `json:"total_time_spent"`
}

// NewSessionResponse converts a session model into a response, with the remaining time already derived.
func NewSessionResponse(session models.ContestSession, remaining int64) SessionResponse {
	return SessionResponse{
		ID:                session.ID,
		ContestID:         session.ContestID,
		UserID:            session.UserID,
		StartedAt:         session.StartedAt,
		SubmittedAt:       session.SubmittedAt,
		Status:            string(session.Status),
		TerminationReason: string(session.TerminationReason),
		WarningCount:      session.WarningCount,
		RemainingSeconds:  remaining,
		TotalTimeSpent:    session.TotalTimeSpent,
	}
}

// ProgressResponse is the participant's view of their own session.
type ProgressResponse struct {
	Session              SessionResponse  `json:"session"`
	ContestStatus        string           `json:"contest_status"`
	WarningThreshold     int              `json:"warning_threshold"`
	QuestionTimes        map[string]int64 `json:"question_times"`
	ProblemTimes         map[string]int64 `json:"problem_times"`
	MCQSectionSeconds    int64            `json:"mcq_section_seconds"`
	CodingSectionSeconds int64            `json:"coding_section_seconds"`
	DraftAnswers         []MCQAnswerInput `json:"draft_answers"`
}

// TrackTimeRequest reports client measured time on one target.
type TrackTimeRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=mcq-question coding-problem mcq-section coding-section"`
	TargetID uint   `json:"target_id"`
	Seconds  int64  `json:"seconds" validate:"gte=0"`
}

// MCQAnswerInput is one selected option set.
type MCQAnswerInput struct {
	QuestionID      uint     `json:"question_id" validate:"required,gt=0"`
	SelectedOptions []string `json:"selected_options" validate:"dive,max=64"`
}

// SaveAnswersRequest replaces the draft answer set.
type SaveAnswersRequest struct {
	Answers []MCQAnswerInput `json:"answers" validate:"dive"`
}

// FinalSubmitRequest carries the final answers. Omitting answers submits the saved draft.
type FinalSubmitRequest struct {
	Answers []MCQAnswerInput `json:"answers" validate:"omitempty,dive"`
}

// FinalSubmitResponse returns the terminal session and the scored result.
type FinalSubmitResponse struct {
	Session          SessionResponse `json:"session"`
	Result           ResultResponse  `json:"result"`
	AlreadySubmitted bool            `json:"already_submitted"`
}

// ToMCQAnswers converts request answers into the stored representation.
func ToMCQAnswers(inputs []MCQAnswerInput) []models.MCQAnswer {
	answers := make([]models.MCQAnswer, 0, len(inputs))
	for _, input := range inputs {
		answers = append(answers, models.MCQAnswer{
			QuestionID:      input.QuestionID,
			SelectedOptions: append([]string(nil), input.SelectedOptions...),
		})
	}
	return answers
}

// NewMCQAnswerInputs converts stored answers back into their request shape.
func NewMCQAnswerInputs(answers []models.MCQAnswer) []MCQAnswerInput {
	out := make([]MCQAnswerInput, 0, len(answers))
	for _, answer := range answers {
		out = append(out, MCQAnswerInput{QuestionID: answer.QuestionID, SelectedOptions: answer.SelectedOptions})
	}
	return out
}

// ResultResponse is the scored outcome for one participant.
type ResultResponse struct {
	ContestID         uint                     `json:"contest_id"`
	UserID            uint                     `json:"user_id"`
	MCQScore          float64                  `json:"mcq_score"`
	CodingScore       float64                  `json:"coding_score"`
	TotalScore        float64                  `json:"total_score"`
	TimeTaken         int64                    `json:"time_taken"`
	Rank              *int                     `json:"rank"`
	Status            string                   `json:"status"`
	TerminationReason string                   `json:"termination_reason,omitempty"`
	SubmittedAt       *time.Time               `json:"submitted_at"`
	MCQAnswers        []models.MCQAnswerResult `json:"mcq_answers"`
	Problems          []models.ProblemBest     `json:"problems"`
}

// NewResultResponse converts a result model into its API representation.
func NewResultResponse(result models.ContestResult) ResultResponse {
	return ResultResponse{
		ContestID:         result.ContestID,
		UserID:            result.UserID,
		MCQScore:          result.MCQScore,
		CodingScore:       result.CodingScore,
		TotalScore:        result.TotalScore,
		TimeTaken:         result.TimeTaken,
		Rank:              result.Rank,
		Status:            string(result.Status),
		TerminationReason: string(result.TerminationReason),
		SubmittedAt:       result.SubmittedAt,
		MCQAnswers:        result.MCQAnswers,
		Problems:          result.Problems,
	}
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank              int     `json:"rank"`
	UserID            uint    `json:"user_id"`
	TotalScore        float64 `json:"total_score"`
	MCQScore          float64 `json:"mcq_score"`
	CodingScore       float64 `json:"coding_score"`
	TimeTaken         int64   `json:"time_taken"`
	Solved            int     `json:"solved"`
	Status            string  `json:"status"`
	TerminationReason string  `json:"termination_reason,omitempty"`
}

// NewLeaderboardEntry converts a ranked result into a leaderboard row.
func NewLeaderboardEntry(result models.ContestResult) LeaderboardEntry {
	entry := LeaderboardEntry{
		UserID:            result.UserID,
		TotalScore:        result.TotalScore,
		MCQScore:          result.MCQScore,
		CodingScore:       result.CodingScore,
		TimeTaken:         result.TimeTaken,
		Status:            string(result.Status),
		TerminationReason: string(result.TerminationReason),
	}
	if result.Rank != nil {
		entry.Rank = *result.Rank
	}
	for _, best := range result.Problems {
		if best.Solved {
			entry.Solved++
		}
	}
	return entry
}

// LeaderboardResponse is the ranked list for a contest.
type LeaderboardResponse struct {
	ContestID    uint               `json:"contest_id"`
	Participants int                `json:"participants"`
	Entries      []LeaderboardEntry `json:"entries"`
	GeneratedAt  time.Time          `json:"generated_at"`
	CacheHit     bool               `json:"cache_hit"`
}

// TimeBreakdownResponse is the privileged per participant timing view.
type TimeBreakdownResponse struct {
	ContestID            uint                      `json:"contest_id"`
	UserID               uint                      `json:"user_id"`
	Status               string                    `json:"status"`
	StartedAt            time.Time                 `json:"started_at"`
	ElapsedSeconds       int64                     `json:"elapsed_seconds"`
	TotalTimeSpent       int64                     `json:"total_time_spent"`
	MCQSectionSeconds    int64                     `json:"mcq_section_seconds"`
	CodingSectionSeconds int64                     `json:"coding_section_seconds"`
	QuestionTimes        map[string]int64          `json:"question_times"`
	ProblemTimes         map[string]int64          `json:"problem_times"`
	WarningCount         int                       `json:"warning_count"`
	Violations           []ViolationRecordResponse `json:"violations"`
}
