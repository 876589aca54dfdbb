package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"voice-commit/internal/model"
)

const maxSyncMessageSize = 64 << 10

const syncMessageSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"enum": ["tokenUpdate", "tokenClear", "requestToken", "tokenReply", "apiKeyUpdate", "ack"]},
    "token": {"type": "string"},
    "username": {"type": "string"},
    "expires_at": {"type": "string"},
    "api_key": {"type": "string"},
    "status": {"enum": ["success", "no_token", "error"]},
    "message": {"type": "string"},
    "version": {"type": "integer", "minimum": 0}
  },
  "allOf": [
    {
      "if": {"properties": {"action": {"const": "tokenUpdate"}}},
      "then": {"required": ["token"], "properties": {"token": {"minLength": 1}}}
    },
    {
      "if": {"properties": {"action": {"const": "apiKeyUpdate"}}},
      "then": {"required": ["api_key"]}
    }
  ]
}`

// receiveSyncMessage accepts a live message from the peer and returns the channel's reply.
// POST /v1/sync/messages
func (h *Handler) receiveSyncMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSyncMessageSize))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.schema.Validate(doc); err != nil {
		h.logger.Warn("Rejected sync message", "error", err)
		respondWithError(w, http.StatusBadRequest, "Invalid sync message")
		return
	}

	var msg model.SyncMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid sync message")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deps.SyncTimeout)
	defer cancel()

	reply, err := h.deps.Inbox.Deliver(ctx, msg)
	if err != nil {
		h.logger.Error("Sync message not handled", "action", msg.Kind, "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Sync channel unavailable")
		return
	}
	respondWithJSON(w, http.StatusOK, reply)
}
