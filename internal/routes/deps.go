package routes

import (
	"net/http"

	"github.com/jklgtravel/mailer/internal/handler/api"
	"github.com/jklgtravel/mailer/internal/router"
)

// APIDeps contains dependencies for the enqueue and ops routes
type APIDeps struct {
	EmailHandler *api.EmailHandler

	// EnqueueLimit throttles POST /api/emails per client; nil disables it.
	EnqueueLimit router.Middleware

	// MaxBodyBytes caps enqueue request bodies.
	MaxBodyBytes int64

	// Health answers GET /health.
	Health http.HandlerFunc

	// Metrics serves the Prometheus registry at GET /metrics.
	Metrics http.Handler
}

// AdminDeps contains dependencies for operator routes
type AdminDeps struct {
	EmailHandler *api.AdminEmailHandler

	// Token is the bearer token required on every admin route.
	Token string
}
