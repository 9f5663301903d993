package rest

import (
	"net/http"
	"strings"
	_ "therapyroom/docs"
	"therapyroom/internal/config"
	"therapyroom/internal/metrics"
	"therapyroom/internal/transport/rest/handler"
	"therapyroom/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/swaggo/swag"
)

// Container holds all dependencies for the router
type Container struct {
	Config   *config.Config
	Auth     middleware.Authenticator
	Tokens   handler.TokenRevoker
	Sessions handler.SessionService
	Health   *handler.HealthHandler
	WS       http.HandlerFunc
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	sessionHandler := handler.NewSessionHandler(c.Sessions)
	authHandler := handler.NewAuthHandler(c.Tokens)
	authMW := middleware.NewAuthMiddleware(c.Auth)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.Config))

	r.HandleFunc("/health", c.Health.Health).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/docs/openapi.json", serveDocs).Methods("GET")

	// WebSocket route (token in query param or header, checked before upgrade)
	v1.HandleFunc("/ws", c.WS).Methods("GET")

	// Authenticated routes
	userRoutes := v1.NewRoute().Subrouter()
	userRoutes.Use(authMW.RequireUser)

	userRoutes.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST", "OPTIONS")

	userRoutes.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/cancel", sessionHandler.Cancel).Methods("POST", "OPTIONS")

	return r
}

func serveDocs(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		log.Error().Err(err).Msg("read api docs")
		http.Error(w, `{"error":"docs unavailable"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(doc))
}

func corsMiddleware(cfg *config.Config) mux.MiddlewareFunc {
	origins := strings.Join(cfg.AllowedOrigins(), ", ")
	if origins == "" {
		origins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origins)
			w.Header().Set("Access-Control-Allow-Methods", cfg.CORSAllowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", cfg.CORSAllowedHeaders)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
