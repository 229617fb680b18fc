package routes

import (
	"github.com/jklgtravel/mailer/internal/middleware"
	"github.com/jklgtravel/mailer/internal/router"
)

// RegisterAPIRoutes registers the enqueue endpoint and the ops endpoints.
// None of them require authentication; the service is expected to sit on a
// private network behind the reverse proxy.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	enqueue := []router.Middleware{middleware.MaxBodySize(deps.MaxBodyBytes)}
	if deps.EnqueueLimit != nil {
		enqueue = append(enqueue, deps.EnqueueLimit)
	}
	r.Post("/api/emails", deps.EmailHandler.Enqueue, enqueue...)

	r.Get("/health", deps.Health)
	if deps.Metrics != nil {
		r.Handle("GET", "/metrics", deps.Metrics)
	}
}
