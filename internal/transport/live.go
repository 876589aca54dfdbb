package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

const (
	// MessagesPath is where each process accepts live sync messages.
	MessagesPath = "/v1/sync/messages"
	healthPath   = "/health"
)

// LivePeer talks to the other process over HTTP while it is reachable.
type LivePeer struct {
	baseURL   string
	secret    string
	timeout   time.Duration
	client    *http.Client
	reachable atomic.Bool
}

// NewLivePeer returns a peer at baseURL that authenticates with the pairing secret.
func NewLivePeer(baseURL, secret string, timeout time.Duration) *LivePeer {
	return &LivePeer{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Reachable returns the result of the last health check.
func (p *LivePeer) Reachable() bool {
	return p.reachable.Load()
}

// setReachable records a health check result and reports whether it changed.
func (p *LivePeer) setReachable(v bool) bool {
	return p.reachable.Swap(v) != v
}

// Send posts msg to the peer and returns its reply.
func (p *LivePeer) Send(ctx context.Context, msg model.SyncMessage) (model.SyncMessage, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return model.SyncMessage{}, fmt.Errorf("encode sync message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return model.SyncMessage{}, fmt.Errorf("create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(model.PairingUser, p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.SyncMessage{}, &custom_errors.NetworkError{Op: "live send", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.SyncMessage{}, &custom_errors.APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var reply model.SyncMessage
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return model.SyncMessage{}, fmt.Errorf("decode sync reply: %w", err)
	}
	return reply, nil
}

// Ping checks the peer's health endpoint.
func (p *LivePeer) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return &custom_errors.NetworkError{Op: "health check", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &custom_errors.APIError{StatusCode: resp.StatusCode}
	}
	return nil
}
