package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/service"
	"github.com/noah-isme/gema-contest-api/internal/utils"
)

const maxLeaderboardLimit = 500

// LeaderboardHandler serves scored results and rankings.
type LeaderboardHandler struct {
	service service.ResultService
	logger  zerolog.Logger
}

// NewLeaderboardHandler constructs a handler instance.
func NewLeaderboardHandler(service service.ResultService, logger zerolog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		service: service,
		logger:  logger.With().Str("component", "leaderboard_handler").Logger(),
	}
}

// Register binds routes under /:contestId.
func (h *LeaderboardHandler) Register(router fiber.Router) {
	router.Get("/result", h.result)
	router.Get("/leaderboard", h.leaderboard)
	router.Get("/leaderboard/me", h.me)
}

func (h *LeaderboardHandler) result(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	result, err := h.service.Get(requestContext(c), contestID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "contest result", dto.NewResultResponse(result))
}

func (h *LeaderboardHandler) leaderboard(c *fiber.Ctx) error {
	contestID, err := parseUintParam(c, "contestId")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid contest id")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	board, err := h.service.Leaderboard(requestContext(c), contestID, limit)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.OK(c, board, "leaderboard", fiber.Map{
		"participants": board.Participants,
		"returned":     len(board.Entries),
		"cache_hit":    board.CacheHit,
	})
}

func (h *LeaderboardHandler) me(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	entry, err := h.service.MyRank(requestContext(c), contestID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "leaderboard position", entry)
}
