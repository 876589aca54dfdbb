package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLivePeer_Send(t *testing.T) {
	t.Run("returns the peer reply", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, MessagesPath, r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, model.PairingUser, user)
			assert.Equal(t, "s3cret", pass)

			var msg model.SyncMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			assert.Equal(t, model.SyncTokenRequest, msg.Kind)

			json.NewEncoder(w).Encode(model.SyncMessage{Kind: model.SyncTokenReply, Token: "ghp_x", Status: model.ReplyStatusSuccess})
		}))
		defer server.Close()

		reply, err := NewLivePeer(server.URL+"/", "s3cret", time.Second).Send(context.Background(), model.SyncMessage{Kind: model.SyncTokenRequest})

		require.NoError(t, err)
		assert.Equal(t, "ghp_x", reply.Token)
	})

	t.Run("non-200 is an API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad message", http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := NewLivePeer(server.URL, "s3cret", time.Second).Send(context.Background(), model.SyncMessage{Kind: model.SyncTokenClear})

		var apiErr *custom_errors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("unreachable peer is a network error", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()

		_, err := NewLivePeer(server.URL, "s3cret", time.Second).Send(context.Background(), model.SyncMessage{Kind: model.SyncTokenClear})

		var netErr *custom_errors.NetworkError
		assert.ErrorAs(t, err, &netErr)
	})

	t.Run("slow peer times out", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer server.Close()

		_, err := NewLivePeer(server.URL, "s3cret", 50*time.Millisecond).Send(context.Background(), model.SyncMessage{Kind: model.SyncTokenClear})
		assert.Error(t, err)
	})
}

func TestHeartbeat_PublishesOnlyChanges(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	peer := NewLivePeer(server.URL, "s3cret", time.Second)
	bus := NewBus(10)
	heartbeat := NewHeartbeat(peer, bus, testLogger(), time.Hour)
	ctx := context.Background()

	heartbeat.check(ctx)
	heartbeat.check(ctx)
	healthy.Store(false)
	heartbeat.check(ctx)

	require.Len(t, bus.events, 2)
	first := <-bus.Events()
	second := <-bus.Events()
	assert.Equal(t, Event{Kind: PeerReachabilityChanged, Reachable: true}, first)
	assert.Equal(t, Event{Kind: PeerReachabilityChanged, Reachable: false}, second)
	assert.False(t, peer.Reachable())
}

func TestBus_Deliver(t *testing.T) {
	bus := NewBus(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		ev := <-bus.Events()
		assert.Equal(t, MessageReceived, ev.Kind)
		assert.True(t, ev.CanReply())
		ev.Reply(model.Ack(model.ReplyStatusSuccess, "first"))
		ev.Reply(model.Ack(model.ReplyStatusSuccess, "second"))
	}()

	reply, err := bus.Deliver(ctx, model.SyncMessage{Kind: model.SyncTokenClear})
	require.NoError(t, err)
	assert.Equal(t, "first", reply.Message)
}

func TestBus_DeliverWithoutConsumer(t *testing.T) {
	bus := NewBus(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := bus.Deliver(ctx, model.SyncMessage{Kind: model.SyncTokenClear})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
