package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/exitticket/exitticket/internal/analytics"
	"github.com/exitticket/exitticket/internal/model"
	"github.com/exitticket/exitticket/internal/workflow"
)

// Repository is everything the API needs from the ticket store.
type Repository interface {
	workflow.Repository
	analytics.Source
}

// Config holds the server settings the handlers depend on.
type Config struct {
	// Teacher is the identity that published tickets are filed under.
	Teacher       string
	BasePath      string
	SecureCookies bool
	SessionSecret []byte
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	repo     Repository
	gen      workflow.Generator
	engine   *analytics.Engine
	config   Config
	cookies  *sessions.CookieStore
	sessions *registry
}

// New creates a new Handler.
func New(repo Repository, gen workflow.Generator, cfg Config) (*Handler, error) {
	if len(cfg.SessionSecret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if cfg.Teacher == "" {
		return nil, errors.New("teacher name is required")
	}

	cookies := sessions.NewCookieStore(cfg.SessionSecret)
	cookies.Options = &sessions.Options{
		Path:     cookiePath(cfg.BasePath),
		MaxAge:   int(sessionIdleTimeout.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	return &Handler{
		repo:     repo,
		gen:      gen,
		engine:   analytics.NewEngine(repo),
		config:   cfg,
		cookies:  cookies,
		sessions: newRegistry(),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/presets", h.handlePresets)

		r.Get("/draft", h.withSession(h.handleGetDraft))
		r.Post("/draft", h.withSession(h.handleRequestDraft))
		r.Delete("/draft", h.withSession(h.handleDiscard))
		r.Post("/draft/regenerate", h.withSession(h.handleRegenerateAll))
		r.Post("/draft/publish", h.withSession(h.handlePublish))

		r.Route("/draft/questions/{index}", func(r chi.Router) {
			r.Put("/", h.withSession(h.handleEditQuestion))
			r.Post("/edit", h.withSession(h.handleBeginEdit))
			r.Post("/stage", h.withSession(h.handleStageEdit))
			r.Post("/save", h.withSession(h.handleSaveEdit))
			r.Post("/cancel", h.withSession(h.handleCancelEdit))
			r.Post("/regenerate", h.withSession(h.handleRegenerateQuestion))
		})

		r.Get("/tickets", h.handleListTickets)
		r.Get("/tickets/{ticketID}", h.handleGetTicket)
		r.Put("/tickets/{ticketID}/status", h.handleSetStatus)
		r.Get("/tickets/{ticketID}/analytics", h.handleTicketAnalytics)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func cookiePath(basePath string) string {
	if basePath == "" {
		return "/"
	}
	return basePath + "/"
}
