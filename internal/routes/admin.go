package routes

import (
	"github.com/jklgtravel/mailer/internal/middleware"
	"github.com/jklgtravel/mailer/internal/router"
)

// RegisterAdminRoutes registers the operator queue routes.
// All routes are protected by the admin bearer token.
func RegisterAdminRoutes(r *router.Router, deps AdminDeps) {
	admin := r.Group(middleware.RequireAdminToken(deps.Token))

	admin.Get("/api/admin/emails", deps.EmailHandler.List)
	admin.Get("/api/admin/emails/stats", deps.EmailHandler.Stats)
	admin.Get("/api/admin/emails/{id}", deps.EmailHandler.Get)
	admin.Post("/api/admin/emails/{id}/requeue", deps.EmailHandler.Requeue)
}
