package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/TaskSync/internal/middleware"
)

// NewRouter constructs the HTTP handler serving the sync API.
//
// Routes:
//
//	POST /api/register  → authHandler.Register
//	POST /api/login     → authHandler.Login
//	POST /api/sync      → syncHandler.Sync    (bearer token required)
//	GET  /api/sync/salt → syncHandler.Salt    (bearer token required)
//	GET  /api/sync/ws   → syncHandler.SyncWS  (bearer token required)
//
// verifyToken maps a session token to its login; it guards the sync
// endpoints so only registered accounts can reach the merge pipeline,
// even though the payload itself is protected by the envelope encryption.
func NewRouter(
	authHandler *AuthHandler,
	syncHandler *SyncHandler,
	verifyToken func(token string) (string, error),
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		// Protected group: requires a valid session token
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(verifyToken))
			r.Post("/sync", syncHandler.Sync)
			r.Get("/sync/salt", syncHandler.Salt)
			r.Get("/sync/ws", syncHandler.SyncWS)
		})
	})

	return r
}
