package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/service"
	"github.com/noah-isme/gema-contest-api/internal/utils"
)

// RegistrationHandler enrols participants into contests.
type RegistrationHandler struct {
	service service.RegistrationService
	logger  zerolog.Logger
}

// NewRegistrationHandler constructs a handler instance.
func NewRegistrationHandler(service service.RegistrationService, logger zerolog.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		service: service,
		logger:  logger.With().Str("component", "registration_handler").Logger(),
	}
}

// Register binds routes under /:contestId.
func (h *RegistrationHandler) Register(router fiber.Router) {
	router.Post("/register", h.register)
}

func (h *RegistrationHandler) register(c *fiber.Ctx) error {
	contestID, userID, ok := participant(c)
	if !ok {
		return nil
	}

	registration, err := h.service.Register(requestContext(c), contestID, userID)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "registered for contest", registration)
}
