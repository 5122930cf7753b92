package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-contest-api/internal/config"
	"github.com/noah-isme/gema-contest-api/internal/handler"
	"github.com/noah-isme/gema-contest-api/internal/middleware"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RegistrationHandler      *handler.RegistrationHandler
	SessionHandler           *handler.SessionHandler
	ContestSubmissionHandler *handler.ContestSubmissionHandler
	LeaderboardHandler       *handler.LeaderboardHandler
	ProctoringHandler        *handler.ProctoringHandler
	JWTMiddleware            fiber.Handler
	SubmissionLimiter        fiber.Handler
	HealthProbes             map[string]handler.HealthProbe
	MetricsHandler           fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.MetricsHandler != nil {
		app.Get("/metrics", deps.MetricsHandler)
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	authenticated := middleware.WithAuth(func(c *fiber.Ctx) error { return c.Next() }, middleware.AuthOptions{})
	contest := app.Group("/api/contests/:contestId", jwtMiddleware, authenticated)

	if deps.RegistrationHandler != nil {
		deps.RegistrationHandler.Register(contest)
	}
	if deps.SessionHandler != nil {
		deps.SessionHandler.Register(contest.Group("/session"))
		deps.SessionHandler.RegisterPrivileged(contest.Group("/participants", middleware.RequireProctor()))
	}
	if deps.ContestSubmissionHandler != nil {
		deps.ContestSubmissionHandler.Register(contest.Group("/submissions"), deps.SubmissionLimiter)
	}
	if deps.LeaderboardHandler != nil {
		deps.LeaderboardHandler.Register(contest)
	}
	if deps.ProctoringHandler != nil {
		deps.ProctoringHandler.Register(contest)
		deps.ProctoringHandler.RegisterPrivileged(contest.Group("/proctor", middleware.RequireProctor()))
	}
}
