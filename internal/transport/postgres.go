package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-commit/internal/model"
)

// NotifyChannel is the LISTEN/NOTIFY channel; the payload is the slot that changed.
const NotifyChannel = "sync_context"

const (
	upsertSlotSQL = `
INSERT INTO sync_context (slot, payload, version, updated_at)
VALUES ($1, $2, 1, now())
ON CONFLICT (slot) DO UPDATE
SET payload = EXCLUDED.payload, version = sync_context.version + 1, updated_at = now()
RETURNING version`
	selectSlotSQL = `SELECT payload, version FROM sync_context WHERE slot = $1`
	notifySQL     = `SELECT pg_notify($1, $2)`
)

// PGContext keeps the slots in the sync_context table and wakes the reader with NOTIFY.
type PGContext struct {
	pool     *pgxpool.Pool
	ownSlot  string
	peerSlot string
	bus      *Bus
	logger   *slog.Logger
	gate     versionGate
}

var _ DurableContext = (*PGContext)(nil)

func NewPGContext(pool *pgxpool.Pool, role string, bus *Bus, logger *slog.Logger) (*PGContext, error) {
	peer, err := PeerRole(role)
	if err != nil {
		return nil, err
	}
	return &PGContext{
		pool:     pool,
		ownSlot:  role,
		peerSlot: peer,
		bus:      bus,
		logger:   logger.With("component", "pg_context"),
	}, nil
}

// Write upserts this process's slot and notifies listeners in the same transaction.
func (c *PGContext) Write(ctx context.Context, msg model.SyncMessage) error {
	payload, err := encodeContext(msg)
	if err != nil {
		return err
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin context write: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	var version int64
	if err := tx.QueryRow(ctx, upsertSlotSQL, c.ownSlot, payload).Scan(&version); err != nil {
		return fmt.Errorf("upsert slot %s: %w", c.ownSlot, err)
	}
	if _, err := tx.Exec(ctx, notifySQL, NotifyChannel, c.ownSlot); err != nil {
		return fmt.Errorf("notify slot %s: %w", c.ownSlot, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit context write: %w", err)
	}

	c.logger.Debug("Wrote durable context", "slot", c.ownSlot, "version", version)
	return nil
}

// Run holds one pooled connection in LISTEN until ctx is done.
func (c *PGContext) Run(ctx context.Context) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.logger.Info("Listening for peer context", "slot", c.peerSlot)

	if err := c.deliverLatest(ctx); err != nil {
		c.logger.Warn("Initial context read failed", "error", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if n.Payload != c.peerSlot {
			continue
		}
		if err := c.deliverLatest(ctx); err != nil {
			c.logger.Warn("Failed to read peer context", "error", err)
		}
	}
}

func (c *PGContext) deliverLatest(ctx context.Context) error {
	var (
		payload []byte
		version int64
	)
	err := c.pool.QueryRow(ctx, selectSlotSQL, c.peerSlot).Scan(&payload, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if !c.gate.accept(version) {
		return nil
	}

	var msg model.SyncMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode slot %s: %w", c.peerSlot, err)
	}
	return c.bus.Publish(ctx, Event{Kind: ContextReceived, Message: msg, Version: version})
}
