package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voice-commit/internal/model"
)

// PeerRole returns the role of the other process.
func PeerRole(role string) (string, error) {
	switch role {
	case model.RolePrimary:
		return model.RoleSatellite, nil
	case model.RoleSatellite:
		return model.RolePrimary, nil
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

// DurableContext is a last-value slot per role. Writing overwrites this process's slot;
// Run watches the peer's slot and publishes every newer value as ContextReceived.
type DurableContext interface {
	Write(ctx context.Context, msg model.SyncMessage) error
	Run(ctx context.Context) error
}

type envelope struct {
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Message   model.SyncMessage `json:"message"`
}

// versionGate drops values at or below the last version seen.
type versionGate struct {
	mu   sync.Mutex
	last int64
}

func (g *versionGate) accept(v int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v <= g.last {
		return false
	}
	g.last = v
	return true
}

// encodeContext serialises a slot value: an envelope for files, the bare message for rows.
func encodeContext(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode durable context: %w", err)
	}
	return raw, nil
}
