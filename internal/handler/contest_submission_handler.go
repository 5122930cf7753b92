package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/service"
	"github.com/noah-isme/gema-contest-api/internal/utils"
)

// ContestSubmissionHandler exposes the coding section: graded submissions, sample runs and full checks.
type ContestSubmissionHandler struct {
	service service.ContestSubmissionService
	logger  zerolog.Logger
}

// NewContestSubmissionHandler constructs a handler instance.
func NewContestSubmissionHandler(service service.ContestSubmissionService, logger zerolog.Logger) *ContestSubmissionHandler {
	return &ContestSubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "contest_submission_handler").Logger(),
	}
}

// Register binds routes under /:contestId/submissions. The limiter guards every judge bound route.
func (h *ContestSubmissionHandler) Register(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/", limiter, h.submit)
	router.Post("/run", limiter, h.run)
	router.Post("/check", limiter, h.check)
	router.Get("/", h.list)
	router.Get("/:id", h.get)
}

func (h *ContestSubmissionHandler) parse(c *fiber.Ctx) (dto.CodeSubmissionRequest, bool) {
	var req dto.CodeSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		_ = utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func (h *ContestSubmissionHandler) submit(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}
	req, ok := h.parse(c)
	if !ok {
		return nil
	}

	submission, err := h.service.Submit(requestContext(c), contestID, userID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", submission)
}

func (h *ContestSubmissionHandler) run(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}
	req, ok := h.parse(c)
	if !ok {
		return nil
	}

	result, err := h.service.Run(requestContext(c), contestID, userID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "code executed", result)
}

func (h *ContestSubmissionHandler) check(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}
	req, ok := h.parse(c)
	if !ok {
		return nil
	}

	result, err := h.service.CheckAll(requestContext(c), contestID, userID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "test cases checked", result)
}

func (h *ContestSubmissionHandler) list(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	problemID, err := parseOptionalUintQuery(c, "problem_id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid problem id")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	items, err := h.service.List(requestContext(c), contestID, userID, problemID, limit)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.OK(c, items, "submissions", fiber.Map{"count": len(items)})
}

func (h *ContestSubmissionHandler) get(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid submission id")
	}

	submission, err := h.service.Get(requestContext(c), contestID, userID, id)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission", submission)
}
