package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

type loginRequest struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type apiKeyRequest struct {
	Key string `json:"key"`
}

type createRepositoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

// selectRepositoryRequest names a repository by id or by "owner/name".
type selectRepositoryRequest struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

type approveResponse struct {
	Commits []model.CommitRecord `json:"commits"`
	Error   string               `json:"error,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// login validates and stores a token, then publishes it to the peer.
// POST /v1/auth/token
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := h.deps.Account.Login(r.Context(), req.Token, req.ExpiresAt)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"login":      tok.OwnerLogin,
		"token_type": tok.Kind,
		"token":      tok.Redacted(),
	})
}

// DELETE /v1/auth/token
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Account.Logout(r.Context()); err != nil {
		h.respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /v1/auth/apikey
func (h *Handler) setAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.deps.Account.SetAPIKey(r.Context(), req.Key); err != nil {
		h.respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/state
func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.deps.Coordinator.Snapshot())
}

// GET /v1/repositories
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.deps.Coordinator.Repositories(r.Context())
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// POST /v1/repositories
func (h *Handler) createRepository(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	repo, err := h.deps.Coordinator.CreateRepository(r.Context(), req.Name, req.Description, req.Private)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, repo)
}

// PUT /v1/repositories/selected
func (h *Handler) selectRepository(w http.ResponseWriter, r *http.Request) {
	var req selectRepositoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := req.ID
	if id == 0 {
		resolved, err := h.resolveRepository(r, req.FullName)
		if err != nil {
			h.respondWithErr(w, err)
			return
		}
		id = resolved
	}

	repo, err := h.deps.Coordinator.SelectRepository(r.Context(), id)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, repo)
}

func (h *Handler) resolveRepository(r *http.Request, fullName string) (int64, error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return 0, &custom_errors.ErrInvalidRepoFormat{Repo: fullName}
	}
	repos, err := h.deps.Coordinator.Repositories(r.Context())
	if err != nil {
		return 0, err
	}
	for _, repo := range repos {
		if strings.EqualFold(repo.FullName, fullName) {
			return repo.GithubRepoID, nil
		}
	}
	return 0, custom_errors.Precondition("unknown repository")
}

// POST /v1/requests/voice
func (h *Handler) beginVoiceInput(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Coordinator.BeginVoiceInput(); err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.deps.Coordinator.Snapshot())
}

// POST /v1/requests/transcript
func (h *Handler) submitTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.deps.Coordinator.SubmitTranscript(r.Context(), req.Transcript)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// approve commits the reviewed result. On failure the records of files already pushed are
// returned alongside the error.
// POST /v1/requests/approve
func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Coordinator.Approve(r.Context())
	if records == nil {
		records = []model.CommitRecord{}
	}
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			h.logger.Error("Approve failed", "error", err)
		}
		respondWithJSON(w, code, approveResponse{Commits: records, Error: err.Error()})
		return
	}
	respondWithJSON(w, http.StatusOK, approveResponse{Commits: records})
}

// POST /v1/requests/reject
func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Coordinator.Reject(); err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.deps.Coordinator.Snapshot())
}

// POST /v1/requests/cancel
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Coordinator.ReturnToIdle(); err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.deps.Coordinator.Snapshot())
}
