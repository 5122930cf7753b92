package handler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/middleware"
	"github.com/noah-isme/gema-contest-api/internal/service"
	"github.com/noah-isme/gema-contest-api/internal/utils"
)

const monitorPingInterval = 30 * time.Second

// EventSubscriber provides the live contest event feed.
type EventSubscriber interface {
	Subscribe(contestID uint) (<-chan dto.ContestEvent, func())
}

// ProctoringHandler accepts violation reports and serves the proctor monitor.
type ProctoringHandler struct {
	service service.ProctoringService
	events  EventSubscriber
	logger  zerolog.Logger
}

// NewProctoringHandler constructs a handler instance.
func NewProctoringHandler(service service.ProctoringService, events EventSubscriber, logger zerolog.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		service: service,
		events:  events,
		logger:  logger.With().Str("component", "proctoring_handler").Logger(),
	}
}

// Register binds the participant violation report under /:contestId.
func (h *ProctoringHandler) Register(router fiber.Router) {
	router.Post("/violations", h.report)
}

// RegisterPrivileged binds proctor routes under /:contestId/proctor.
func (h *ProctoringHandler) RegisterPrivileged(router fiber.Router) {
	router.Get("/violations", h.list)
	router.Use("/monitor", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/monitor", websocket.New(h.monitor))
}

func (h *ProctoringHandler) report(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	var req dto.ViolationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	outcome, err := h.service.ReportViolation(requestContext(c), contestID, userID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	message := "violation recorded"
	if outcome.AutoSubmit {
		message = "violation limit reached, contest submitted"
	}
	return utils.SendSuccess(c, message, outcome)
}

func (h *ProctoringHandler) list(c *fiber.Ctx) error {
	contestID, err := parseUintParam(c, "contestId")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid contest id")
	}
	userID, err := parseOptionalUintQuery(c, "user_id")
	if err != nil {
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "INVALID_ID", "invalid user id")
	}

	items, err := h.service.ListViolations(requestContext(c), contestID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.OK(c, items, "violations", fiber.Map{"count": len(items)})
}

// monitor streams contest events to a proctor until either side closes the connection.
func (h *ProctoringHandler) monitor(conn *websocket.Conn) {
	contestID, err := strconv.ParseUint(conn.Params("contestId"), 10, 64)
	if err != nil || contestID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid contest id"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	logger := h.logger.With().
		Uint64("contest_id", contestID).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Logger()

	events, unsubscribe := h.events.Subscribe(uint(contestID))
	defer unsubscribe()

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			cancel()
			_ = conn.Close()
		})
	}

	logger.Info().Msg("proctor monitor connected")

	go func() {
		defer closeConn()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(monitorPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeConn()
			logger.Info().Msg("proctor monitor disconnected")
			return
		case event, ok := <-events:
			if !ok {
				closeConn()
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Warn().Err(err).Msg("proctor monitor write failed")
				closeConn()
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				closeConn()
				return
			}
		}
	}
}
