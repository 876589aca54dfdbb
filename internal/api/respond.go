package api

import (
	"encoding/json"
	"errors"
	"net/http"

	custom_errors "voice-commit/internal/errors"
)

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		precondition *custom_errors.PreconditionError
		apiErr       *custom_errors.APIError
		netErr       *custom_errors.NetworkError
		genErr       *custom_errors.GenerationError
		repoErr      *custom_errors.ErrInvalidRepoFormat
	)
	switch {
	case errors.As(err, &precondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, custom_errors.ErrBusy), errors.Is(err, custom_errors.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, custom_errors.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &repoErr):
		return http.StatusBadRequest
	case errors.As(err, &apiErr), errors.As(err, &netErr), errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithErr writes err with its mapped status. Unexpected errors are logged and hidden.
func (h *Handler) respondWithErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
		respondWithError(w, code, "Internal server error")
		return
	}
	respondWithError(w, code, err.Error())
}
