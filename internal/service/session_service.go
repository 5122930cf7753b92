package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/observability"
	"github.com/noah-isme/gema-contest-api/internal/repository"
)

// Time tracking kinds accepted by TrackTime.
const (
	TrackKindQuestion      = "mcq-question"
	TrackKindProblem       = "coding-problem"
	TrackKindMCQSection    = "mcq-section"
	TrackKindCodingSection = "coding-section"
)

// SessionService drives the per participant contest state machine.
type SessionService interface {
	Start(ctx context.Context, contestID, userID uint) (dto.SessionResponse, error)
	Progress(ctx context.Context, contestID, userID uint) (dto.ProgressResponse, error)
	TrackTime(ctx context.Context, contestID, userID uint, req dto.TrackTimeRequest) (dto.ProgressResponse, error)
	SaveAnswers(ctx context.Context, contestID, userID uint, req dto.SaveAnswersRequest) (dto.ProgressResponse, error)
	FinalSubmit(ctx context.Context, contestID, userID uint, req dto.FinalSubmitRequest) (dto.FinalSubmitResponse, error)
	ForceTerminate(ctx context.Context, sessionID uint, reason models.TerminationReason) (bool, error)
	TimeBreakdown(ctx context.Context, contestID, userID uint) (dto.TimeBreakdownResponse, error)
}

// SessionConfig tunes the state machine.
type SessionConfig struct {
	WarningThreshold int
}

type sessionService struct {
	contests      repository.ContestRepository
	registrations repository.RegistrationRepository
	sessions      repository.SessionRepository
	violations    repository.ViolationRepository
	results       ResultService
	events        EventEmitter
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	config        SessionConfig
	now           func() time.Time
}

// NewSessionService constructs the session state machine.
func NewSessionService(contests repository.ContestRepository, registrations repository.RegistrationRepository, sessions repository.SessionRepository, violations repository.ViolationRepository, results ResultService, events EventEmitter, validate *validator.Validate, logger zerolog.Logger, cfg SessionConfig) SessionService {
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = defaultWarningThreshold
	}

	return &sessionService{
		contests:      contests,
		registrations: registrations,
		sessions:      sessions,
		violations:    violations,
		results:       results,
		events:        events,
		validator:     validate,
		logger:        logger.With().Str("component", "session_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-contest-api/internal/service/session"),
		config:        cfg,
		now:           time.Now,
	}
}

// Start creates the participant's session, or returns the existing one untouched.
func (s *sessionService) Start(ctx context.Context, contestID, userID uint) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.start", trace.WithAttributes(
		attribute.Int("contest.id", int(contestID)),
		attribute.Int("user.id", int(userID)),
	))
	defer span.End()

	contest, err := s.loadContest(ctx, contestID)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	registered, err := s.registrations.Exists(ctx, contestID, userID)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}
	if !registered {
		return dto.SessionResponse{}, ErrNotRegistered
	}

	existing, err := s.sessions.GetByContestAndUser(ctx, contestID, userID)
	if err == nil {
		existing = s.expireIfOverdue(ctx, contest, existing)
		return dto.NewSessionResponse(existing, s.remaining(contest, existing)), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}

	now := s.now().UTC()
	if contest.StatusAt(now) != models.ContestStatusLive {
		return dto.SessionResponse{}, ErrContestNotLive
	}

	session := models.ContestSession{
		ContestID:     contestID,
		UserID:        userID,
		StartedAt:     now,
		Status:        models.SessionStatusInProgress,
		QuestionTimes: map[string]int64{},
		ProblemTimes:  map[string]int64{},
		MCQAnswers:    []models.MCQAnswer{},
	}
	created, err := s.sessions.CreateIfAbsent(ctx, &session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		return dto.SessionResponse{}, err
	}
	if !created {
		session, err = s.sessions.GetByContestAndUser(ctx, contestID, userID)
		if err != nil {
			return dto.SessionResponse{}, err
		}
		return dto.NewSessionResponse(session, s.remaining(contest, session)), nil
	}

	if err := s.results.Begin(ctx, contestID, userID); err != nil {
		s.logger.Warn().Err(err).Uint("contest_id", contestID).Uint("user_id", userID).Msg("failed to mark result in progress")
	}

	observability.SessionsStarted().Inc()
	emit(ctx, s.events, dto.ContestEvent{
		Type:      dto.EventSessionStarted,
		ContestID: contestID,
		UserID:    userID,
	})
	s.logger.Info().Uint("contest_id", contestID).Uint("user_id", userID).Msg("contest session started")

	return dto.NewSessionResponse(session, s.remaining(contest, session)), nil
}

func (s *sessionService) Progress(ctx context.Context, contestID, userID uint) (dto.ProgressResponse, error) {
	contest, session, err := s.load(ctx, contestID, userID)
	if err != nil {
		return dto.ProgressResponse{}, err
	}
	session = s.expireIfOverdue(ctx, contest, session)
	return s.progress(contest, session), nil
}

// TrackTime accumulates client reported seconds. Each report is clamped to the remaining allowance.
func (s *sessionService) TrackTime(ctx context.Context, contestID, userID uint, req dto.TrackTimeRequest) (dto.ProgressResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ProgressResponse{}, err
	}
	if (req.Kind == TrackKindQuestion || req.Kind == TrackKindProblem) && req.TargetID == 0 {
		return dto.ProgressResponse{}, ErrTrackTargetRequired
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		contest, session, err := s.loadActive(ctx, contestID, userID)
		if err != nil {
			return dto.ProgressResponse{}, err
		}

		seconds := req.Seconds
		if remaining := s.remaining(contest, session); seconds > remaining {
			seconds = remaining
		}

		next := session
		next.QuestionTimes = cloneTimes(session.QuestionTimes)
		next.ProblemTimes = cloneTimes(session.ProblemTimes)
		key := strconv.FormatUint(uint64(req.TargetID), 10)
		switch req.Kind {
		case TrackKindQuestion:
			next.QuestionTimes[key] += seconds
		case TrackKindProblem:
			next.ProblemTimes[key] += seconds
		case TrackKindMCQSection:
			next.MCQSectionSeconds += seconds
		case TrackKindCodingSection:
			next.CodingSectionSeconds += seconds
		}

		ok, err := s.sessions.CompareAndSwap(ctx, &next, models.SessionStatusInProgress)
		if err != nil {
			return dto.ProgressResponse{}, err
		}
		if ok {
			return s.progress(contest, next), nil
		}
	}

	return dto.ProgressResponse{}, ErrConcurrentUpdate
}

// SaveAnswers replaces the draft MCQ answer set of an in-progress session.
func (s *sessionService) SaveAnswers(ctx context.Context, contestID, userID uint, req dto.SaveAnswersRequest) (dto.ProgressResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ProgressResponse{}, err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		contest, session, err := s.loadActive(ctx, contestID, userID)
		if err != nil {
			return dto.ProgressResponse{}, err
		}
		if !contest.MCQEnabled {
			return dto.ProgressResponse{}, ErrSectionDisabled
		}

		next := session
		next.MCQAnswers = dto.ToMCQAnswers(req.Answers)

		ok, err := s.sessions.CompareAndSwap(ctx, &next, models.SessionStatusInProgress)
		if err != nil {
			return dto.ProgressResponse{}, err
		}
		if ok {
			return s.progress(contest, next), nil
		}
	}

	return dto.ProgressResponse{}, ErrConcurrentUpdate
}

// FinalSubmit ends the session as COMPLETED. Calling it on a terminal session returns the
// existing outcome without scoring again, and any answers sent with the late call are dropped.
func (s *sessionService) FinalSubmit(ctx context.Context, contestID, userID uint, req dto.FinalSubmitRequest) (dto.FinalSubmitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.FinalSubmitResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "sessions.final_submit", trace.WithAttributes(
		attribute.Int("contest.id", int(contestID)),
		attribute.Int("user.id", int(userID)),
	))
	defer span.End()

	contest, session, err := s.load(ctx, contestID, userID)
	if err != nil {
		return dto.FinalSubmitResponse{}, err
	}

	status := models.SessionStatusSubmitted
	reason := models.TerminationCompleted
	var answers *[]models.MCQAnswer
	if req.Answers != nil {
		converted := dto.ToMCQAnswers(req.Answers)
		answers = &converted
	}
	if s.overdue(contest, session) {
		status = models.SessionStatusTimedOut
		reason = models.TerminationTimeout
		answers = nil
	}

	terminal, won, err := s.transition(ctx, contest, session, status, reason, answers)
	if err != nil {
		span.RecordError(err)
		return dto.FinalSubmitResponse{}, err
	}
	if !won {
		return s.existingOutcome(ctx, contest, terminal)
	}

	result, err := s.finalize(ctx, contest, terminal)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize failed")
		return dto.FinalSubmitResponse{}, err
	}

	return dto.FinalSubmitResponse{
		Session: dto.NewSessionResponse(terminal, 0),
		Result:  dto.NewResultResponse(result),
	}, nil
}

// ForceTerminate ends an in-progress session on behalf of proctoring or the timeout sweep.
// It reports false when another transition already ended the session.
func (s *sessionService) ForceTerminate(ctx context.Context, sessionID uint, reason models.TerminationReason) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.force_terminate", trace.WithAttributes(
		attribute.Int("session.id", int(sessionID)),
		attribute.String("termination.reason", string(reason)),
	))
	defer span.End()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrSessionNotFound
		}
		return false, err
	}
	contest, err := s.loadContest(ctx, session.ContestID)
	if err != nil {
		return false, err
	}

	status := models.SessionStatusSubmitted
	if reason == models.TerminationTimeout {
		status = models.SessionStatusTimedOut
	}

	terminal, won, err := s.transition(ctx, contest, session, status, reason, nil)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !won {
		if _, err := s.ensureFinal(ctx, contest, terminal); err != nil {
			span.RecordError(err)
			return false, err
		}
		return false, nil
	}

	if _, err := s.finalize(ctx, contest, terminal); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize failed")
		return true, err
	}
	return true, nil
}

// TimeBreakdown is the privileged view of everything tracked for one participant.
func (s *sessionService) TimeBreakdown(ctx context.Context, contestID, userID uint) (dto.TimeBreakdownResponse, error) {
	contest, session, err := s.load(ctx, contestID, userID)
	if err != nil {
		return dto.TimeBreakdownResponse{}, err
	}

	violations, err := s.violations.List(ctx, contestID, &userID)
	if err != nil {
		return dto.TimeBreakdownResponse{}, err
	}

	elapsed := session.ElapsedSeconds(s.now())
	if session.Status.IsTerminal() {
		elapsed = session.TotalTimeSpent
	} else if limit := int64(s.deadline(contest, session).Sub(session.StartedAt) / time.Second); elapsed > limit {
		elapsed = limit
	}

	return dto.TimeBreakdownResponse{
		ContestID:            contestID,
		UserID:               userID,
		Status:               string(session.Status),
		StartedAt:            session.StartedAt,
		ElapsedSeconds:       elapsed,
		TotalTimeSpent:       session.TotalTimeSpent,
		MCQSectionSeconds:    session.MCQSectionSeconds,
		CodingSectionSeconds: session.CodingSectionSeconds,
		QuestionTimes:        cloneTimes(session.QuestionTimes),
		ProblemTimes:         cloneTimes(session.ProblemTimes),
		WarningCount:         session.WarningCount,
		Violations:           dto.NewViolationRecordResponseSlice(violations),
	}, nil
}

// transition moves the session from IN_PROGRESS into a terminal state with compare-and-swap.
// When another writer got there first it returns the stored terminal session and false.
func (s *sessionService) transition(ctx context.Context, contest models.Contest, session models.ContestSession, status models.SessionStatus, reason models.TerminationReason, answers *[]models.MCQAnswer) (models.ContestSession, bool, error) {
	current := session
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if current.Status != models.SessionStatusInProgress {
			return current, false, nil
		}

		now := s.now().UTC()
		next := current
		next.Status = status
		next.TerminationReason = reason
		next.SubmittedAt = &now
		next.TotalTimeSpent = s.spent(contest, current, now)
		if answers != nil {
			next.MCQAnswers = *answers
		}

		ok, err := s.sessions.CompareAndSwap(ctx, &next, models.SessionStatusInProgress)
		if err != nil {
			return current, false, err
		}
		if ok {
			observability.Terminations().WithLabelValues(string(reason)).Inc()
			s.logger.Info().
				Uint("contest_id", next.ContestID).
				Uint("user_id", next.UserID).
				Str("status", string(status)).
				Str("reason", string(reason)).
				Int64("time_spent", next.TotalTimeSpent).
				Msg("contest session ended")
			return next, true, nil
		}

		current, err = s.sessions.GetByID(ctx, current.ID)
		if err != nil {
			return session, false, err
		}
	}

	return current, false, ErrConcurrentUpdate
}

func (s *sessionService) finalize(ctx context.Context, contest models.Contest, session models.ContestSession) (models.ContestResult, error) {
	result, err := s.results.Finalize(ctx, contest, session)
	if err != nil {
		s.logger.Error().Err(err).Uint("session_id", session.ID).Msg("failed to finalize contest result")
		return models.ContestResult{}, err
	}

	eventType := dto.EventSessionSubmitted
	if session.TerminationReason != models.TerminationCompleted {
		eventType = dto.EventSessionTerminated
	}
	emit(ctx, s.events, dto.ContestEvent{
		Type:      eventType,
		ContestID: session.ContestID,
		UserID:    session.UserID,
		Data: map[string]interface{}{
			"status":      string(session.Status),
			"reason":      string(session.TerminationReason),
			"total_score": result.TotalScore,
		},
	})
	return result, nil
}

func (s *sessionService) existingOutcome(ctx context.Context, contest models.Contest, session models.ContestSession) (dto.FinalSubmitResponse, error) {
	response := dto.FinalSubmitResponse{
		Session:          dto.NewSessionResponse(session, s.remaining(contest, session)),
		AlreadySubmitted: true,
	}

	result, err := s.ensureFinal(ctx, contest, session)
	if err != nil {
		return dto.FinalSubmitResponse{}, err
	}
	response.Result = dto.NewResultResponse(result)
	return response, nil
}

// ensureFinal finalizes the result of a terminal session when an earlier finalize failed
// after the session transition was committed.
func (s *sessionService) ensureFinal(ctx context.Context, contest models.Contest, session models.ContestSession) (models.ContestResult, error) {
	result, err := s.results.Get(ctx, session.ContestID, session.UserID)
	if err != nil && !errors.Is(err, ErrResultNotFound) {
		return models.ContestResult{}, err
	}
	if err == nil && result.Status.IsFinal() {
		return result, nil
	}

	s.logger.Warn().Uint("session_id", session.ID).Msg("terminal session has no final result, finalizing")
	return s.finalize(ctx, contest, session)
}

// expireIfOverdue times out an in-progress session whose allowance has run out, ahead of the sweeper.
func (s *sessionService) expireIfOverdue(ctx context.Context, contest models.Contest, session models.ContestSession) models.ContestSession {
	if session.Status != models.SessionStatusInProgress || !s.overdue(contest, session) {
		return session
	}

	if _, err := s.ForceTerminate(ctx, session.ID, models.TerminationTimeout); err != nil {
		s.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("failed to expire overdue session")
	}

	reloaded, err := s.sessions.GetByID(ctx, session.ID)
	if err != nil {
		return session
	}
	return reloaded
}

func (s *sessionService) load(ctx context.Context, contestID, userID uint) (models.Contest, models.ContestSession, error) {
	contest, err := s.loadContest(ctx, contestID)
	if err != nil {
		return models.Contest{}, models.ContestSession{}, err
	}

	session, err := s.sessions.GetByContestAndUser(ctx, contestID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Contest{}, models.ContestSession{}, ErrSessionNotFound
		}
		return models.Contest{}, models.ContestSession{}, err
	}
	return contest, session, nil
}

// loadActive returns a session that still accepts mutations.
func (s *sessionService) loadActive(ctx context.Context, contestID, userID uint) (models.Contest, models.ContestSession, error) {
	contest, session, err := s.load(ctx, contestID, userID)
	if err != nil {
		return models.Contest{}, models.ContestSession{}, err
	}
	if session.Status != models.SessionStatusInProgress {
		return models.Contest{}, models.ContestSession{}, ErrSessionTerminal
	}
	if s.overdue(contest, session) {
		s.expireIfOverdue(ctx, contest, session)
		return models.Contest{}, models.ContestSession{}, ErrSessionTerminal
	}
	return contest, session, nil
}

func (s *sessionService) loadContest(ctx context.Context, contestID uint) (models.Contest, error) {
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Contest{}, ErrContestNotFound
		}
		return models.Contest{}, err
	}
	return contest, nil
}

func (s *sessionService) progress(contest models.Contest, session models.ContestSession) dto.ProgressResponse {
	return dto.ProgressResponse{
		Session:              dto.NewSessionResponse(session, s.remaining(contest, session)),
		ContestStatus:        string(contest.StatusAt(s.now())),
		WarningThreshold:     s.config.WarningThreshold,
		QuestionTimes:        cloneTimes(session.QuestionTimes),
		ProblemTimes:         cloneTimes(session.ProblemTimes),
		MCQSectionSeconds:    session.MCQSectionSeconds,
		CodingSectionSeconds: session.CodingSectionSeconds,
		DraftAnswers:         dto.NewMCQAnswerInputs(session.MCQAnswers),
	}
}

func (s *sessionService) deadline(contest models.Contest, session models.ContestSession) time.Time {
	return sessionDeadline(contest, session)
}

func (s *sessionService) overdue(contest models.Contest, session models.ContestSession) bool {
	return !s.now().Before(s.deadline(contest, session))
}

// remaining is the authoritative server side countdown. Terminal sessions have none left.
func (s *sessionService) remaining(contest models.Contest, session models.ContestSession) int64 {
	if session.Status.IsTerminal() {
		return 0
	}
	left := s.deadline(contest, session).Sub(s.now())
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}

// spent is now minus startedAt, capped at the allowance.
func (s *sessionService) spent(contest models.Contest, session models.ContestSession, now time.Time) int64 {
	elapsed := session.ElapsedSeconds(now)
	limit := int64(s.deadline(contest, session).Sub(session.StartedAt) / time.Second)
	if limit > 0 && elapsed > limit {
		return limit
	}
	return elapsed
}

// sessionDeadline is startedAt plus the contest duration. Contests without a duration close at their end time.
func sessionDeadline(contest models.Contest, session models.ContestSession) time.Time {
	if seconds := contest.DurationSeconds(); seconds > 0 {
		return session.StartedAt.Add(time.Duration(seconds) * time.Second)
	}
	return contest.EndTime
}

func cloneTimes(source map[string]int64) map[string]int64 {
	cloned := make(map[string]int64, len(source))
	for key, value := range source {
		cloned[key] = value
	}
	return cloned
}
