package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/observability"
	"github.com/noah-isme/gema-contest-api/internal/repository"
)

const defaultWarningThreshold = 3

// SessionTerminator forcibly ends a session.
type SessionTerminator interface {
	ForceTerminate(ctx context.Context, sessionID uint, reason models.TerminationReason) (bool, error)
}

// ProctoringService applies the violation escalation policy.
type ProctoringService interface {
	ReportViolation(ctx context.Context, contestID, userID uint, req dto.ViolationRequest) (dto.ViolationResponse, error)
	ListViolations(ctx context.Context, contestID uint, userID *uint) ([]dto.ViolationRecordResponse, error)
}

type proctoringService struct {
	sessions   repository.SessionRepository
	violations repository.ViolationRepository
	terminator SessionTerminator
	events     EventEmitter
	validator  *validator.Validate
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	tracer     trace.Tracer
	threshold  int
}

// NewProctoringService constructs the escalation policy. A non-positive threshold falls back to three warnings.
func NewProctoringService(sessions repository.SessionRepository, violations repository.ViolationRepository, terminator SessionTerminator, events EventEmitter, validate *validator.Validate, logger zerolog.Logger, threshold int) ProctoringService {
	if threshold <= 0 {
		threshold = defaultWarningThreshold
	}

	return &proctoringService{
		sessions:   sessions,
		violations: violations,
		terminator: terminator,
		events:     events,
		validator:  validate,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "proctoring_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-contest-api/internal/service/proctoring"),
		threshold:  threshold,
	}
}

// ReportViolation appends the audit entry, then increments the server held warning counter, then
// escalates. The counter, not the client, decides when the threshold is reached.
func (s *proctoringService) ReportViolation(ctx context.Context, contestID, userID uint, req dto.ViolationRequest) (dto.ViolationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ViolationResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "proctoring.report_violation", trace.WithAttributes(
		attribute.Int("contest.id", int(contestID)),
		attribute.Int("user.id", int(userID)),
		attribute.String("violation.type", req.Type),
	))
	defer span.End()

	session, err := s.sessions.GetByContestAndUser(ctx, contestID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ViolationResponse{}, ErrSessionNotFound
		}
		return dto.ViolationResponse{}, err
	}
	if session.Status.IsTerminal() {
		return dto.ViolationResponse{}, ErrSessionTerminal
	}

	violation := models.Violation{
		ContestID:     contestID,
		UserID:        userID,
		Type:          models.ViolationType(req.Type),
		WarningNumber: session.WarningCount + 1,
		Details:       strings.TrimSpace(s.sanitizer.Sanitize(req.Details)),
	}
	if len(req.Metadata) > 0 {
		violation.Metadata = datatypes.JSONMap(req.Metadata)
	}
	recorded := true
	if err := s.violations.Create(ctx, &violation); err != nil {
		recorded = false
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("failed to append violation audit entry")
	}

	count, updated, err := s.sessions.IncrementWarnings(ctx, session.ID)
	if err != nil {
		span.RecordError(err)
		return dto.ViolationResponse{}, err
	}
	if !updated {
		return dto.ViolationResponse{}, ErrSessionTerminal
	}

	if recorded && violation.WarningNumber != count {
		if err := s.violations.SetWarningNumber(ctx, violation.ID, count); err != nil {
			s.logger.Warn().Err(err).Uint("violation_id", violation.ID).Msg("failed to correct violation warning number")
		} else {
			violation.WarningNumber = count
		}
	}

	observability.Violations().WithLabelValues(req.Type).Inc()
	emit(ctx, s.events, dto.ContestEvent{
		Type:      dto.EventViolationReported,
		ContestID: contestID,
		UserID:    userID,
		Data: map[string]interface{}{
			"type":           req.Type,
			"warning_number": count,
			"threshold":      s.threshold,
		},
	})

	response := dto.ViolationResponse{
		ViolationID:   violation.ID,
		WarningNumber: count,
		Threshold:     s.threshold,
		SessionStatus: string(models.SessionStatusInProgress),
	}
	if count < s.threshold {
		return response, nil
	}

	response.AutoSubmit = true
	terminated, err := s.terminator.ForceTerminate(ctx, session.ID, models.TerminationMalpractice)
	if err != nil && !terminated {
		span.RecordError(err)
		return dto.ViolationResponse{}, err
	}
	if err != nil {
		s.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("malpractice termination scored with errors")
	}

	if current, err := s.sessions.GetByID(ctx, session.ID); err == nil {
		response.SessionStatus = string(current.Status)
	} else {
		response.SessionStatus = string(models.SessionStatusSubmitted)
	}

	s.logger.Warn().
		Uint("contest_id", contestID).
		Uint("user_id", userID).
		Int("warnings", count).
		Bool("terminated_here", terminated).
		Msg("warning threshold reached")

	return response, nil
}

func (s *proctoringService) ListViolations(ctx context.Context, contestID uint, userID *uint) ([]dto.ViolationRecordResponse, error) {
	violations, err := s.violations.List(ctx, contestID, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewViolationRecordResponseSlice(violations), nil
}
