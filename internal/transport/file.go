package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"voice-commit/internal/model"
)

const contextDirMode = 0o700

// FileContext keeps each slot as <dir>/<role>.json. Writes go through a temp file and a
// rename so the watcher never sees a partial value.
type FileContext struct {
	dir      string
	ownPath  string
	peerPath string
	bus      *Bus
	logger   *slog.Logger
	gate     versionGate

	mu          sync.Mutex
	lastWritten int64
}

var _ DurableContext = (*FileContext)(nil)

func NewFileContext(dir, role string, bus *Bus, logger *slog.Logger) (*FileContext, error) {
	peer, err := PeerRole(role)
	if err != nil {
		return nil, err
	}
	dir = filepath.Clean(dir)
	return &FileContext{
		dir:      dir,
		ownPath:  filepath.Join(dir, role+".json"),
		peerPath: filepath.Join(dir, peer+".json"),
		bus:      bus,
		logger:   logger.With("component", "file_context", "dir", dir),
	}, nil
}

func (c *FileContext) Write(ctx context.Context, msg model.SyncMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	version := time.Now().UnixNano()
	if version <= c.lastWritten {
		version = c.lastWritten + 1
	}
	raw, err := encodeContext(envelope{Version: version, UpdatedAt: time.Now().UTC(), Message: msg})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.dir, contextDirMode); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".ctx-*")
	if err != nil {
		return fmt.Errorf("create temp context: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write context: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close context: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.ownPath); err != nil {
		return fmt.Errorf("replace context: %w", err)
	}

	c.lastWritten = version
	return nil
}

// Run reads the peer slot once, then on every change until ctx is done.
func (c *FileContext) Run(ctx context.Context) error {
	if err := os.MkdirAll(c.dir, contextDirMode); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}
	c.logger.Info("Watching peer context", "slot", filepath.Base(c.peerPath))

	c.deliverLatest(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != c.peerPath || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			c.deliverLatest(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("Context watcher error", "error", err)
		}
	}
}

func (c *FileContext) deliverLatest(ctx context.Context) {
	raw, err := os.ReadFile(c.peerPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("Failed to read peer context", "error", err)
		}
		return
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("Ignoring malformed peer context", "error", err)
		return
	}
	if !c.gate.accept(env.Version) {
		c.logger.Debug("Ignoring stale peer context", "version", env.Version)
		return
	}

	ev := Event{Kind: ContextReceived, Message: env.Message, Version: env.Version}
	if err := c.bus.Publish(ctx, ev); err != nil {
		c.logger.Debug("Dropped context event", "error", err)
	}
}
