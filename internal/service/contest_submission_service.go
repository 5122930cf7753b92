package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/observability"
	"github.com/noah-isme/gema-contest-api/internal/repository"
	"github.com/noah-isme/gema-contest-api/pkg/judge"
)

// ContestSubmissionService exposes run, self check and formal graded submissions.
type ContestSubmissionService interface {
	Submit(ctx context.Context, contestID, userID uint, req dto.CodeSubmissionRequest) (dto.SubmissionResponse, error)
	Run(ctx context.Context, contestID, userID uint, req dto.CodeSubmissionRequest) (dto.RunResponse, error)
	CheckAll(ctx context.Context, contestID, userID uint, req dto.CodeSubmissionRequest) (dto.CheckAllResponse, error)
	List(ctx context.Context, contestID, userID uint, problemID *uint, limit int) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, contestID, userID, id uint) (dto.SubmissionResponse, error)
}

type contestSubmissionService struct {
	contests    repository.ContestRepository
	sessions    repository.SessionRepository
	problems    repository.ProblemRepository
	submissions repository.ContestSubmissionRepository
	results     ResultService
	grader      *Grader
	events      EventEmitter
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewContestSubmissionService constructs the submission service.
func NewContestSubmissionService(contests repository.ContestRepository, sessions repository.SessionRepository, problems repository.ProblemRepository, submissions repository.ContestSubmissionRepository, results ResultService, grader *Grader, events EventEmitter, validate *validator.Validate, logger zerolog.Logger) ContestSubmissionService {
	return &contestSubmissionService{
		contests:    contests,
		sessions:    sessions,
		problems:    problems,
		submissions: submissions,
		results:     results,
		grader:      grader,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "contest_submission_service").Logger(),
		now:         time.Now,
	}
}

// Submit grades the source and records it. The judge is called without holding any session or
// result lock; only the final best-score merge is atomic.
func (s *contestSubmissionService) Submit(ctx context.Context, contestID, userID uint, req dto.CodeSubmissionRequest) (dto.SubmissionResponse, error) {
	language, problem, err := s.prepare(ctx, contestID, userID, req, true)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission := models.ContestSubmission{
		ContestID: contestID,
		UserID:    userID,
		ProblemID: problem.ID,
		Language:  language.Name,
		Source:    req.Source,
		Verdict:   models.VerdictPending,
		Results:   []models.TestCaseResult{},
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	eval := s.grader.Evaluate(ctx, problem, req.Source, language)

	gradedAt := s.now().UTC()
	submission.Verdict = eval.Verdict
	submission.Score = eval.Score
	submission.TestcasesPassed = eval.Passed
	submission.TestcasesTotal = eval.Total
	submission.Results = eval.Results
	submission.CompileOutput = eval.CompileOutput
	submission.PartialFailure = eval.PartialFailure()
	submission.GradedAt = &gradedAt

	if _, err := s.submissions.RecordVerdict(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := eval.Err(); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("submission graded with execution errors")
	}

	if err := s.problems.IncrementCounters(ctx, problem.ID, eval.Verdict == models.VerdictAccepted); err != nil {
		s.logger.Warn().Err(err).Uint("problem_id", problem.ID).Msg("failed to bump problem counters")
	}

	merged, err := s.results.MergeSubmission(ctx, submission)
	if err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to merge submission into result")
	}
	if err == nil && !merged {
		s.logger.Info().Uint("submission_id", submission.ID).Msg("submission recorded after session ended; result unchanged")
	}

	observability.SubmissionsGraded().WithLabelValues(string(eval.Verdict)).Inc()
	emit(ctx, s.events, dto.ContestEvent{
		Type:      dto.EventSubmissionGraded,
		ContestID: contestID,
		UserID:    userID,
		Data: map[string]interface{}{
			"submission_id": submission.ID,
			"problem_id":    problem.ID,
			"verdict":       string(eval.Verdict),
			"score":         eval.Score,
		},
	})

	return dto.NewSubmissionResponse(submission, true), nil
}

// Run executes the source once and is never scored.
func (s *contestSubmissionService) Run(ctx context.Context, contestID, userID uint, req dto.CodeSubmissionRequest) (dto.RunResponse, error) {
	language, problem, err := s.prepare(ctx, contestID, userID, req, false)
	if err != nil {
		return dto.RunResponse{}, err
	}

	outcome, err := s.grader.RunSingle(ctx, problem, req.Source, language, req.Input)
	if err != nil {
		return dto.RunResponse{}, err
	}

	return dto.RunResponse{
		Input:          outcome.Input,
		ExpectedOutput: outcome.ExpectedOutput,
		Stdout:         outcome.Stdout,
		Stderr:         outcome.Stderr,
		CompileOutput:  outcome.CompileOutput,
		Verdict:        string(outcome.Verdict),
		Passed:         outcome.Passed,
		TimeSeconds:    outcome.TimeSeconds,
		MemoryKB:       outcome.MemoryKB,
	}, nil
}

// CheckAll runs every case for self checking. Nothing is persisted.
func (s *contestSubmissionService) CheckAll(ctx context.Context, contestID, userID uint, req dto.CodeSubmissionRequest) (dto.CheckAllResponse, error) {
	language, problem, err := s.prepare(ctx, contestID, userID, req, false)
	if err != nil {
		return dto.CheckAllResponse{}, err
	}

	eval := s.grader.CheckAll(ctx, problem, req.Source, language)

	return dto.CheckAllResponse{
		ProblemID:      problem.ID,
		Verdict:        string(eval.Verdict),
		Passed:         eval.Passed,
		Total:          eval.Total,
		Score:          eval.Score,
		MaxScore:       eval.MaxScore,
		CompileOutput:  eval.CompileOutput,
		PartialFailure: eval.PartialFailure(),
		Results:        dto.NewTestCaseResultResponses(eval.Results),
	}, nil
}

func (s *contestSubmissionService) List(ctx context.Context, contestID, userID uint, problemID *uint, limit int) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.List(ctx, repository.ContestSubmissionFilter{
		ContestID: contestID,
		UserID:    userID,
		ProblemID: problemID,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, dto.NewSubmissionResponse(submission, false))
	}
	return responses, nil
}

func (s *contestSubmissionService) Get(ctx context.Context, contestID, userID, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if submission.ContestID != contestID || submission.UserID != userID {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}
	return dto.NewSubmissionResponse(submission, true), nil
}

// prepare validates the request and resolves the language and problem. Formal submissions also need
// an in-progress session; run and check only need the participant to have started.
func (s *contestSubmissionService) prepare(ctx context.Context, contestID, userID uint, req dto.CodeSubmissionRequest, formal bool) (judge.Language, models.Problem, error) {
	if err := s.validator.Struct(req); err != nil {
		return judge.Language{}, models.Problem{}, err
	}

	language, ok := judge.LookupLanguage(req.Language)
	if !ok {
		return judge.Language{}, models.Problem{}, ErrUnsupportedLanguage
	}

	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return judge.Language{}, models.Problem{}, ErrContestNotFound
		}
		return judge.Language{}, models.Problem{}, err
	}
	if !contest.CodingEnabled {
		return judge.Language{}, models.Problem{}, ErrSectionDisabled
	}

	session, err := s.sessions.GetByContestAndUser(ctx, contestID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return judge.Language{}, models.Problem{}, ErrSessionNotFound
		}
		return judge.Language{}, models.Problem{}, err
	}
	if formal && session.Status != models.SessionStatusInProgress {
		return judge.Language{}, models.Problem{}, ErrSessionTerminal
	}

	problem, err := s.problems.GetByID(ctx, req.ProblemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return judge.Language{}, models.Problem{}, ErrProblemNotFound
		}
		return judge.Language{}, models.Problem{}, err
	}
	if problem.ContestID != contestID {
		return judge.Language{}, models.Problem{}, ErrProblemNotFound
	}

	return language, problem, nil
}
