package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/middleware"
	"github.com/noah-isme/gema-contest-api/internal/service"
	"github.com/noah-isme/gema-contest-api/internal/utils"
	"github.com/noah-isme/gema-contest-api/pkg/judge"
)

var errInvalidID = errors.New("invalid identifier")

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(key)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errInvalidID
	}
	return uint(parsed), nil
}

func parseOptionalUintQuery(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return nil, errInvalidID
	}
	id := uint(parsed)
	return &id, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

// participant resolves the contest id path parameter and the authenticated user. It writes the
// error response itself and reports false when the request cannot proceed.
func participant(c *fiber.Ctx) (uint, uint, bool) {
	userID := userIDFromContext(c)
	if userID == 0 {
		_ = utils.SendErrorCode(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return 0, 0, false
	}
	contestID, err := parseUintParam(c, "contestId")
	if err != nil {
		_ = utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid contest id")
		return 0, 0, false
	}
	return contestID, userID, true
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}

// handleError maps domain errors onto HTTP responses. Unknown errors are logged and hidden.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	if isValidationError(err) {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	}

	switch {
	case errors.Is(err, service.ErrTrackTargetRequired):
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "UNSUPPORTED_LANGUAGE", err.Error())
	case errors.Is(err, service.ErrNotRegistered):
		return utils.SendErrorCode(c, fiber.StatusForbidden, "NOT_REGISTERED", err.Error())
	case errors.Is(err, service.ErrContestNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrProblemNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrResultNotFound):
		return utils.SendErrorCode(c, fiber.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrContestNotLive):
		return utils.SendErrorCode(c, fiber.StatusConflict, "CONTEST_NOT_LIVE", err.Error())
	case errors.Is(err, service.ErrSessionTerminal):
		return utils.SendErrorCode(c, fiber.StatusConflict, "SESSION_TERMINAL", err.Error())
	case errors.Is(err, service.ErrSectionDisabled):
		return utils.SendErrorCode(c, fiber.StatusConflict, "SECTION_DISABLED", err.Error())
	case errors.Is(err, service.ErrAlreadyRegistered):
		return utils.SendErrorCode(c, fiber.StatusConflict, "ALREADY_REGISTERED", err.Error())
	case errors.Is(err, service.ErrContestFull):
		return utils.SendErrorCode(c, fiber.StatusConflict, "CONTEST_FULL", err.Error())
	case errors.Is(err, service.ErrRegistrationClosed):
		return utils.SendErrorCode(c, fiber.StatusConflict, "REGISTRATION_CLOSED", err.Error())
	case errors.Is(err, service.ErrConcurrentUpdate):
		return utils.SendErrorCode(c, fiber.StatusConflict, "CONCURRENT_UPDATE", err.Error())
	case errors.Is(err, judge.ErrExecution), errors.Is(err, context.DeadlineExceeded):
		requestLogger(logger, c).Warn().Err(err).Msg("code execution unavailable")
		return utils.SendErrorCode(c, fiber.StatusServiceUnavailable, "EXECUTION_ERROR", "code execution service unavailable, try again")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("request failed")
		return utils.SendErrorCode(c, fiber.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
