// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"voice-commit/internal/coordinator"
	"voice-commit/internal/model"
)

const defaultSyncTimeout = 5 * time.Second

// SyncInbox hands an inbound live message to the sync channel and waits for its reply.
type SyncInbox interface {
	Deliver(ctx context.Context, msg model.SyncMessage) (model.SyncMessage, error)
}

// Account manages the local credentials.
type Account interface {
	Login(ctx context.Context, token string, expiresAt *time.Time) (model.AuthToken, error)
	Logout(ctx context.Context) error
	SetAPIKey(ctx context.Context, key string) error
}

// Coordinator is the request state machine as driven over HTTP.
type Coordinator interface {
	Snapshot() coordinator.Snapshot
	Repositories(ctx context.Context) ([]model.Repository, error)
	SelectRepository(ctx context.Context, id int64) (model.Repository, error)
	CreateRepository(ctx context.Context, name, description string, private bool) (model.Repository, error)
	BeginVoiceInput() error
	SubmitTranscript(ctx context.Context, transcript string) (model.CodeGenerationResult, error)
	Reject() error
	Approve(ctx context.Context) ([]model.CommitRecord, error)
	ReturnToIdle() error
}

// Deps are the components behind the API. Coordinator is nil on the primary, which then
// serves only the sync and account routes. Every /v1 route requires PairingSecret.
type Deps struct {
	Inbox         SyncInbox
	Account       Account
	Coordinator   Coordinator
	SyncTimeout   time.Duration
	PairingSecret string
}

// Handler is the container for API dependencies.
type Handler struct {
	deps   Deps
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(deps Deps, logger *slog.Logger) (http.Handler, error) {
	if deps.PairingSecret == "" {
		return nil, errors.New("pairing secret is required")
	}
	schema, err := jsonschema.CompileString("sync-message.json", syncMessageSchema)
	if err != nil {
		return nil, err
	}
	if deps.SyncTimeout <= 0 {
		deps.SyncTimeout = defaultSyncTimeout
	}
	h := &Handler{deps: deps, schema: schema, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.BasicAuth("voicecommit", map[string]string{model.PairingUser: deps.PairingSecret}))

		r.Post("/sync/messages", h.receiveSyncMessage)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/token", h.login)
			r.Delete("/token", h.logout)
			r.Put("/apikey", h.setAPIKey)
		})

		if deps.Coordinator == nil {
			return
		}
		r.Get("/state", h.getState)
		r.Route("/repositories", func(r chi.Router) {
			r.Get("/", h.listRepositories)
			r.Post("/", h.createRepository)
			r.Put("/selected", h.selectRepository)
		})
		r.Route("/requests", func(r chi.Router) {
			r.Post("/voice", h.beginVoiceInput)
			r.Post("/transcript", h.submitTranscript)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.reject)
			r.Post("/cancel", h.cancel)
		})
	})

	return r, nil
}

// healthCheck answers the peer's reachability checks.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
