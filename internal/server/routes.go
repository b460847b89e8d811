package server

import (
	"github.com/gofiber/fiber/v2"

	"reviewforge/internal/core/review"
	"reviewforge/internal/health"
	"reviewforge/internal/platform/apify"
	"reviewforge/internal/platform/redis"
)

type Dependencies struct {
	Review *review.Handler
	Redis  *redis.Service
	Apify  *apify.Client
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler(d.Redis, d.Apify)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	api.Post("/reviews/compose", d.Review.HandleCompose)
	api.Post("/reviews/:reviewId/refine", d.Review.HandleRefine)
	api.Delete("/reviews/:reviewId", d.Review.HandleDiscard)
	api.Post("/reviews", d.Review.HandleCreateJob)
	api.Get("/reviews/jobs/:jobId", d.Review.HandleGetJob)

	return healthHandler
}
