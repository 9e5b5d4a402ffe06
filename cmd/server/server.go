// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/TennisBuddy/internal/api"
	"github.com/codr1/TennisBuddy/internal/api/apiutil"
	"github.com/codr1/TennisBuddy/internal/api/auth"
	"github.com/codr1/TennisBuddy/internal/api/buddies"
	"github.com/codr1/TennisBuddy/internal/api/courts"
	"github.com/codr1/TennisBuddy/internal/api/reservations"
	"github.com/codr1/TennisBuddy/internal/api/users"
	"github.com/codr1/TennisBuddy/internal/config"
	"github.com/codr1/TennisBuddy/internal/ratelimit"
	"github.com/codr1/TennisBuddy/internal/templates/layouts"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func newServer(cfg *config.Config, limiter *ratelimit.Limiter) *http.Server {
	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      newHandler(cfg, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func newHandler(cfg *config.Config, limiter *ratelimit.Limiter) http.Handler {
	router := http.NewServeMux()

	// Register routes
	registerRoutes(router, cfg, limiter)

	// Setup middleware chain
	return api.ChainMiddleware(
		router,
		api.WithAuth,
		limiter.Middleware(ratelimit.BucketGlobal, isStaticRequest),
		api.WithCORS(cfg.App.CORSOrigins),
		api.WithSecurityHeaders,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)
}

func isStaticRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/static/") || r.URL.Path == "/favicon.ico"
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, limiter *ratelimit.Limiter) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := apiutil.WriteJSON(w, http.StatusOK, healthResponse{Status: "OK", Timestamp: time.Now().UTC()}); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write health response")
		}
	})

	// Auth routes
	authLimit := limiter.Middleware(ratelimit.BucketAuth, nil)
	mux.Handle("POST /api/v1/auth/signup", authLimit(http.HandlerFunc(auth.HandleSignup)))
	mux.Handle("POST /api/v1/auth/login", authLimit(http.HandlerFunc(auth.HandleLogin)))

	// Reservation routes
	mux.HandleFunc("GET /api/v1/reservations", reservations.HandleReservationsList)
	mux.HandleFunc("POST /api/v1/reservations", reservations.HandleReservationCreate)
	mux.HandleFunc("GET /api/v1/reservations/{id}", reservations.HandleReservationGet)
	mux.HandleFunc("PATCH /api/v1/reservations/{id}", reservations.HandleReservationUpdate)
	mux.HandleFunc("DELETE /api/v1/reservations/{id}", reservations.HandleReservationDelete)

	// Court routes
	mux.HandleFunc("GET /api/v1/courts", courts.HandleCourtsList)
	mux.HandleFunc("POST /api/v1/courts", courts.HandleCourtCreate)
	mux.HandleFunc("GET /api/v1/courts/{id}", courts.HandleCourtGet)
	mux.HandleFunc("PATCH /api/v1/courts/{id}", courts.HandleCourtUpdate)
	mux.HandleFunc("DELETE /api/v1/courts/{id}", courts.HandleCourtDelete)
	mux.HandleFunc("GET /api/v1/courts/{id}/events", courts.HandleCourtEvents)

	// User routes
	mux.HandleFunc("GET /api/v1/users/me", users.HandleCurrentUser)
	mux.HandleFunc("GET /api/v1/users", users.HandleUsersList)
	mux.HandleFunc("GET /api/v1/users/{id}", users.HandleUserGet)
	mux.HandleFunc("PATCH /api/v1/users/{id}", users.HandleUserUpdate)
	mux.HandleFunc("DELETE /api/v1/users/{id}", users.HandleUserDelete)

	// Buddy routes
	mux.HandleFunc("GET /api/v1/buddies", buddies.HandleBuddiesList)
	mux.HandleFunc("POST /api/v1/buddies", buddies.HandleBuddyCreate)
	mux.HandleFunc("GET /api/v1/buddies/{id}", buddies.HandleBuddyGet)
	mux.HandleFunc("PATCH /api/v1/buddies/{id}", buddies.HandleBuddyUpdate)
	mux.HandleFunc("PATCH /api/v1/buddies/{id}/close", buddies.HandleBuddyClose)
	mux.HandleFunc("DELETE /api/v1/buddies/{id}", buddies.HandleBuddyDelete)

	// Static file handling
	fs := http.FileServer(http.Dir(cfg.App.StaticDir))
	mux.Handle("GET /static/", http.StripPrefix("/static/", fs))

	// Everything else: JSON 404 under /api/, the front-end shell elsewhere
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Route not found"})
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusMethodNotAllowed, Message: "Method not allowed"})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := layouts.Base(cfg.App.Name, layouts.DefaultTheme(), layouts.AppShell()).Render(r.Context(), w); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Failed to render app shell")
		}
	})
}
