package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/service"
	"github.com/noah-isme/gema-contest-api/internal/utils"
)

// SessionHandler exposes the participant session lifecycle.
type SessionHandler struct {
	service service.SessionService
	logger  zerolog.Logger
}

// NewSessionHandler constructs a handler instance.
func NewSessionHandler(service service.SessionService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register binds participant session routes under /:contestId/session.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("/start", h.start)
	router.Get("/", h.progress)
	router.Post("/time", h.trackTime)
	router.Put("/answers", h.saveAnswers)
	router.Post("/submit", h.finalSubmit)
}

// RegisterPrivileged binds the proctor only timing view under /:contestId/participants.
func (h *SessionHandler) RegisterPrivileged(router fiber.Router) {
	router.Get("/:userId/time", h.timeBreakdown)
}

func (h *SessionHandler) start(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	session, err := h.service.Start(requestContext(c), contestID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "contest session started", session)
}

func (h *SessionHandler) progress(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	progress, err := h.service.Progress(requestContext(c), contestID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "contest progress", progress)
}

func (h *SessionHandler) trackTime(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	var req dto.TrackTimeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	progress, err := h.service.TrackTime(requestContext(c), contestID, userID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "time recorded", progress)
}

func (h *SessionHandler) saveAnswers(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	var req dto.SaveAnswersRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	progress, err := h.service.SaveAnswers(requestContext(c), contestID, userID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "answers saved", progress)
}

// finalSubmit accepts an empty body, which submits the saved draft.
func (h *SessionHandler) finalSubmit(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	var req dto.FinalSubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	outcome, err := h.service.FinalSubmit(requestContext(c), contestID, userID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	message := "contest submitted"
	if outcome.AlreadySubmitted {
		message = "contest already submitted"
	}
	return utils.SendSuccess(c, message, outcome)
}

func (h *SessionHandler) timeBreakdown(c *fiber.Ctx) error {
	contestID, err := parseUintParam(c, "contestId")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid contest id")
	}
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid user id")
	}

	breakdown, err := h.service.TimeBreakdown(requestContext(c), contestID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "time breakdown", breakdown)
}
