package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"thinkora-client/internal/config"
	"thinkora-client/internal/handler"
	"thinkora-client/internal/middleware"
	"thinkora-client/internal/model"
)

type Sessions interface {
	Snapshot() model.Snapshot
}

type Handlers struct {
	Session   *handler.SessionHandler
	Assistant *handler.AssistantHandler
	Proxy     http.Handler
	Events    http.Handler
	Metrics   http.Handler
}

func New(cfg *config.Config, logger *slog.Logger, sessions Sessions, h Handlers) http.Handler {
	r := chi.NewRouter()
	authLimiter := middleware.NewRateLimitMiddleware(cfg.AuthRateLimitRPM)
	requireSession := middleware.RequireSession(sessions)
	timeout := middleware.Timeout(cfg.RequestTimeout * 3 / 2)

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", h.Metrics)

	r.Route("/session", func(s chi.Router) {
		// Upgraded connections must not sit behind http.TimeoutHandler.
		s.Get("/ws", h.Events.ServeHTTP)

		s.Group(func(s chi.Router) {
			s.Use(timeout)
			s.Get("/", h.Session.Get)
			s.With(authLimiter.Handler).Post("/login", h.Session.Login)
			s.With(authLimiter.Handler).Post("/register", h.Session.Register)
			s.Post("/refresh", h.Session.Refresh)
			s.Post("/logout", h.Session.Logout)
		})
	})

	r.Route("/assistant", func(a chi.Router) {
		a.Use(requireSession, timeout)
		a.Post("/chat", h.Assistant.Chat)
		a.Get("/chat/history", h.Assistant.History)
		a.Post("/gpa", h.Assistant.GPA)
		a.Get("/status", h.Assistant.Status)
	})

	r.With(requireSession, middleware.StreamingTimeout(4*cfg.RequestTimeout, 2*cfg.RequestTimeout)).
		Handle("/api/*", h.Proxy)

	return r
}
