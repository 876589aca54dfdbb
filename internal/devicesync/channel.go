// Package devicesync keeps the auth token and generator key consistent between the primary
// and satellite processes. It owns the local token cache; everyone else only reads it.
package devicesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-commit/internal/credentials"
	"voice-commit/internal/model"
	"voice-commit/internal/transport"
)

// Live is the reachable-only delivery mode.
type Live interface {
	Reachable() bool
	Send(ctx context.Context, msg model.SyncMessage) (model.SyncMessage, error)
}

// Durable is the always-deliverable, last-value-wins delivery mode.
type Durable interface {
	Write(ctx context.Context, msg model.SyncMessage) error
}

// TokenObserver is told about every change of the token cache. ok is false after a clear.
type TokenObserver interface {
	TokenChanged(tok model.AuthToken, ok bool)
}

// Channel is one end of the device sync channel. Every token and key carries the version at
// which it was set; a change is applied only when it is newer than the one held.
type Channel struct {
	role    string
	live    Live
	durable Durable
	vault   *credentials.Vault
	logger  *slog.Logger
	now     func() time.Time

	// applyMu serialises changes so the vault and the cache move together.
	applyMu sync.Mutex

	mu           sync.RWMutex
	token        *model.AuthToken
	tokenVersion int64
	apiKey       string
	keyVersion   int64
	observers    []TokenObserver

	wg sync.WaitGroup
}

func NewChannel(role string, live Live, durable Durable, vault *credentials.Vault, logger *slog.Logger) *Channel {
	return &Channel{
		role:    role,
		live:    live,
		durable: durable,
		vault:   vault,
		logger:  logger.With("component", "devicesync", "role", role),
		now:     time.Now,
	}
}

// Subscribe registers o for token changes.
func (c *Channel) Subscribe(o TokenObserver) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// Load fills the caches from the credential store, versions included.
func (c *Channel) Load(ctx context.Context) error {
	rec, err := c.vault.LoadToken(ctx)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	key, keyVersion, err := c.vault.LoadAPIKey(ctx)
	if err != nil {
		return fmt.Errorf("load api key: %w", err)
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	c.apiKey = key
	c.keyVersion = keyVersion
	c.tokenVersion = rec.Version
	c.mu.Unlock()

	if rec.Present() {
		c.commitToken(&rec.Token, rec.Version)
	}
	return nil
}

// Token returns the cached token if it is present and not expired.
func (c *Channel) Token() (model.AuthToken, bool) {
	tok, _, ok := c.tokenState()
	return tok, ok
}

func (c *Channel) tokenState() (model.AuthToken, int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil || !c.token.Usable(c.now()) {
		return model.AuthToken{}, c.tokenVersion, false
	}
	return *c.token, c.tokenVersion, true
}

// APIKey returns the synced generator key.
func (c *Channel) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// PublishToken stores tok locally and sends it to the peer. Only the local write can fail;
// delivery problems are logged by Send.
func (c *Channel) PublishToken(ctx context.Context, tok model.AuthToken) error {
	version, _, err := c.applyToken(ctx, &tok, 0)
	if err != nil {
		return err
	}
	c.Send(ctx, model.TokenUpdate(tok, version))
	return nil
}

// PublishClear evicts the token locally and on the peer.
func (c *Channel) PublishClear(ctx context.Context) error {
	version, _, err := c.applyToken(ctx, nil, 0)
	if err != nil {
		return err
	}
	c.Send(ctx, model.SyncMessage{Kind: model.SyncTokenClear, Version: version})
	return nil
}

// PublishAPIKey stores key locally and sends it to the peer.
func (c *Channel) PublishAPIKey(ctx context.Context, key string) error {
	version, _, err := c.applyAPIKey(ctx, key, 0)
	if err != nil {
		return err
	}
	c.Send(ctx, model.SyncMessage{Kind: model.SyncAPIKeyUpdate, APIKey: key, Version: version})
	return nil
}

// RequestToken asks the peer for its token. The answer arrives as a tokenReply.
func (c *Channel) RequestToken(ctx context.Context) error {
	return c.Send(ctx, model.SyncMessage{Kind: model.SyncTokenRequest})
}

// Send delivers msg live when the peer is reachable and falls back to the durable slot.
// A live reply is handled like any other inbound message.
func (c *Channel) Send(ctx context.Context, msg model.SyncMessage) error {
	logger := c.logger.With("action", msg.Kind)

	if c.live.Reachable() {
		reply, err := c.live.Send(ctx, msg)
		if err == nil {
			logger.Debug("Delivered live", "reply", reply.Kind, "status", reply.Status)
			c.receive(ctx, reply, transport.Event{})
			return nil
		}
		logger.Warn("Live delivery failed, falling back to durable context", "error", err)
	}

	if err := c.durable.Write(ctx, msg); err != nil {
		logger.Error("Durable delivery failed", "error", err)
		return fmt.Errorf("deliver %s: %w", msg.Kind, err)
	}
	logger.Debug("Delivered durable")
	return nil
}

// Run handles transport events one at a time until ctx is done or events is closed. Outbound
// sends triggered by an event run beside the loop and are waited for on return.
func (c *Channel) Run(ctx context.Context, events <-chan transport.Event) error {
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Handle(ctx, ev)
		}
	}
}

// Handle processes a single transport event.
func (c *Channel) Handle(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.PeerReachabilityChanged:
		if ev.Reachable {
			c.async(ctx, c.onPeerReachable)
		}
	case transport.MessageReceived, transport.ContextReceived:
		c.logger.Debug("Received sync message", "via", ev.Kind, "action", ev.Message.Kind, "version", ev.Message.Version)
		c.receive(ctx, ev.Message, ev)
	default:
		c.logger.Warn("Ignoring unknown transport event", "kind", ev.Kind)
	}
}

// Announce runs the startup handshake for this role.
func (c *Channel) Announce(ctx context.Context) {
	c.onPeerReachable(ctx)
}

// async runs fn off the event loop. A live send waits for the peer's own loop, so sending
// from inside Run would stall both sides when they send at once.
func (c *Channel) async(ctx context.Context, fn func(context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

func (c *Channel) onPeerReachable(ctx context.Context) {
	var err error
	switch c.role {
	case model.RoleSatellite:
		err = c.RequestToken(ctx)
	case model.RolePrimary:
		if tok, version, ok := c.tokenState(); ok {
			err = c.Send(ctx, model.TokenUpdate(tok, version))
		}
	}
	if err != nil {
		c.logger.Warn("Peer handshake failed", "error", err)
	}
}

// receive applies msg. ev carries the reply path for live messages; when it cannot reply,
// answers to tokenRequest go out through Send instead.
func (c *Channel) receive(ctx context.Context, msg model.SyncMessage, ev transport.Event) {
	logger := c.logger.With("action", msg.Kind)

	switch msg.Kind {
	case model.SyncTokenUpdate:
		if msg.Token == "" {
			logger.Warn("Ignoring token update without a token")
			ev.Reply(model.Ack(model.ReplyStatusError, "token missing"))
			return
		}
		tok := msg.AuthToken()
		_, applied, err := c.applyToken(ctx, &tok, msg.Version)
		c.acknowledge(ev, applied, err, "token updated")

	case model.SyncTokenClear:
		_, applied, err := c.applyToken(ctx, nil, msg.Version)
		c.acknowledge(ev, applied, err, "token cleared")

	case model.SyncTokenRequest:
		tok, version, ok := c.tokenState()
		reply := model.TokenReply(nil, version)
		if ok {
			reply = model.TokenReply(&tok, version)
		}
		if ev.CanReply() {
			ev.Reply(reply)
			return
		}
		c.async(ctx, func(ctx context.Context) {
			if err := c.Send(ctx, reply); err != nil {
				logger.Warn("Could not answer token request", "error", err)
			}
		})

	case model.SyncTokenReply:
		if msg.Status == model.ReplyStatusNoToken || msg.Token == "" {
			if msg.Version == 0 {
				logger.Info("Peer has no token")
				ev.Reply(model.Ack(model.ReplyStatusSuccess, "noted"))
				return
			}
			_, applied, err := c.applyToken(ctx, nil, msg.Version)
			c.acknowledge(ev, applied, err, "token cleared")
			return
		}
		tok := msg.AuthToken()
		_, applied, err := c.applyToken(ctx, &tok, msg.Version)
		c.acknowledge(ev, applied, err, "token received")

	case model.SyncAPIKeyUpdate:
		_, applied, err := c.applyAPIKey(ctx, msg.APIKey, msg.Version)
		c.acknowledge(ev, applied, err, "api key updated")

	case model.SyncAck:
		logger.Debug("Peer acknowledged", "status", msg.Status, "message", msg.Message)

	default:
		logger.Warn("Ignoring unknown sync action")
		ev.Reply(model.Ack(model.ReplyStatusError, "unknown action"))
	}
}

func (c *Channel) acknowledge(ev transport.Event, applied bool, err error, message string) {
	switch {
	case err != nil:
		c.logger.Error("Failed to apply sync message", "error", err)
		ev.Reply(model.Ack(model.ReplyStatusError, err.Error()))
	case !applied:
		c.logger.Debug("Ignoring stale sync message")
		ev.Reply(model.Ack(model.ReplyStatusSuccess, "already current"))
	default:
		ev.Reply(model.Ack(model.ReplyStatusSuccess, message))
	}
}

// applyToken makes tok the current token as of version; a nil tok clears it. A zero version
// stamps the change with the local clock. Versions at or below the current one are dropped.
func (c *Channel) applyToken(ctx context.Context, tok *model.AuthToken, version int64) (int64, bool, error) {
	if tok != nil && tok.Value == "" {
		return 0, false, errors.New("empty token")
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.RLock()
	current := c.tokenVersion
	c.mu.RUnlock()

	if version == 0 {
		version = nextVersion(c.now(), current)
	} else if version <= current {
		return current, false, nil
	}

	var err error
	if tok != nil {
		err = c.vault.SaveToken(ctx, *tok, version)
	} else {
		err = c.vault.ClearToken(ctx, version)
	}
	if err != nil {
		return 0, false, fmt.Errorf("persist token: %w", err)
	}
	c.commitToken(tok, version)
	return version, true, nil
}

// commitToken updates the cache and tells the observers. applyMu must be held.
func (c *Channel) commitToken(tok *model.AuthToken, version int64) {
	c.mu.Lock()
	c.token = nil
	if tok != nil {
		cached := *tok
		c.token = &cached
	}
	c.tokenVersion = version
	observers := append([]TokenObserver(nil), c.observers...)
	c.mu.Unlock()

	if tok == nil {
		c.logger.Info("Token cache cleared", "version", version)
		for _, o := range observers {
			o.TokenChanged(model.AuthToken{}, false)
		}
		return
	}
	c.logger.Info("Token cache updated", "token", tok.Redacted(), "owner", tok.OwnerLogin, "version", version)
	for _, o := range observers {
		o.TokenChanged(*tok, true)
	}
}

func (c *Channel) applyAPIKey(ctx context.Context, key string, version int64) (int64, bool, error) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.RLock()
	current := c.keyVersion
	c.mu.RUnlock()

	if version == 0 {
		version = nextVersion(c.now(), current)
	} else if version <= current {
		return current, false, nil
	}

	if err := c.vault.SaveAPIKey(ctx, key, version); err != nil {
		return 0, false, fmt.Errorf("persist api key: %w", err)
	}
	c.mu.Lock()
	c.apiKey = key
	c.keyVersion = version
	c.mu.Unlock()
	c.logger.Info("Generator API key updated", "present", key != "", "version", version)
	return version, true, nil
}

func nextVersion(now time.Time, current int64) int64 {
	v := now.UnixNano()
	if v <= current {
		v = current + 1
	}
	return v
}
