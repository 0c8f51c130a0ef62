package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://ozlistings.com", "https://app.ozlistings.com", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)

				r.Post("/recipients", h.AttachRecipient)
				r.Delete("/recipients/{contactID}", h.DetachRecipient)

				// Background tasks: respond 202, run on the pool.
				r.Post("/stage", h.StageCampaign)
				r.Post("/generate", h.StageCampaign) // dashboard compatibility alias
				r.Post("/launch", h.LaunchCampaign)
				r.Post("/retry-failed", h.RetryFailed)

				r.Post("/pause", h.PauseCampaign)
				r.Post("/resume", h.ResumeCampaign)
				r.Get("/progress", h.GetProgress)

				r.Get("/emails", h.ListEmails)
				r.Post("/preview", h.PreviewCampaign)
				r.Post("/test-send", h.TestSend)
			})
		})

		r.Route("/emails/{emailID}", func(r chi.Router) {
			r.Get("/", h.GetEmail)
			r.Put("/", h.UpdateEmail)
		})

		r.Post("/webhooks/sparkpost", h.SparkPostWebhook)
		r.Get("/unsubscribe", h.Unsubscribe)
	})

	return r
}
