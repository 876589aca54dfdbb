package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voice-commit/internal/coordinator"
	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
	"voice-commit/internal/transport"
)

// MockCoordinator is a mock of the Coordinator interface.
type MockCoordinator struct {
	mock.Mock
}

func (m *MockCoordinator) Snapshot() coordinator.Snapshot {
	return m.Called().Get(0).(coordinator.Snapshot)
}
func (m *MockCoordinator) Repositories(ctx context.Context) ([]model.Repository, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Repository), args.Error(1)
}
func (m *MockCoordinator) SelectRepository(ctx context.Context, id int64) (model.Repository, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Repository), args.Error(1)
}
func (m *MockCoordinator) CreateRepository(ctx context.Context, name, description string, private bool) (model.Repository, error) {
	args := m.Called(ctx, name, description, private)
	return args.Get(0).(model.Repository), args.Error(1)
}
func (m *MockCoordinator) BeginVoiceInput() error { return m.Called().Error(0) }
func (m *MockCoordinator) SubmitTranscript(ctx context.Context, transcript string) (model.CodeGenerationResult, error) {
	args := m.Called(ctx, transcript)
	return args.Get(0).(model.CodeGenerationResult), args.Error(1)
}
func (m *MockCoordinator) Reject() error { return m.Called().Error(0) }
func (m *MockCoordinator) Approve(ctx context.Context) ([]model.CommitRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.CommitRecord), args.Error(1)
}
func (m *MockCoordinator) ReturnToIdle() error { return m.Called().Error(0) }

type fakeAccount struct {
	login  string
	err    error
	key    string
	logout bool
}

func (a *fakeAccount) Login(_ context.Context, token string, expiresAt *time.Time) (model.AuthToken, error) {
	if a.err != nil {
		return model.AuthToken{}, a.err
	}
	return model.NewAuthToken(token, a.login, expiresAt), nil
}
func (a *fakeAccount) Logout(context.Context) error { a.logout = true; return a.err }
func (a *fakeAccount) SetAPIKey(_ context.Context, key string) error {
	a.key = key
	return a.err
}

const testSecret = "s3cret"

type testEnv struct {
	server  *httptest.Server
	bus     *transport.Bus
	account *fakeAccount
	coord   *MockCoordinator
}

func setupTestAPI(t *testing.T, withCoordinator bool) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env := &testEnv{bus: transport.NewBus(1), account: &fakeAccount{login: "octocat"}}
	deps := Deps{Inbox: env.bus, Account: env.account, SyncTimeout: 200 * time.Millisecond, PairingSecret: testSecret}
	if withCoordinator {
		env.coord = new(MockCoordinator)
		deps.Coordinator = env.coord
	}
	router, err := NewRouter(deps, logger)
	require.NoError(t, err)
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	return e.doAs(t, testSecret, method, path, body)
}

// doAs sends a request with secret as the pairing password; "" sends no credentials.
func (e *testEnv) doAs(t *testing.T, secret, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if secret != "" {
		req.SetBasicAuth(model.PairingUser, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealth(t *testing.T) {
	env := setupTestAPI(t, false)

	resp, body := env.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSyncMessages(t *testing.T) {
	env := setupTestAPI(t, false)
	go func() {
		for ev := range env.bus.Events() {
			if ev.Message.Kind == model.SyncTokenRequest {
				ev.Reply(model.TokenReply(nil, 0))
				continue
			}
			ev.Reply(model.Ack(model.ReplyStatusSuccess, "ok"))
		}
	}()

	t.Run("valid message gets the channel reply", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/v1/sync/messages", `{"action": "requestToken"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "tokenReply", body["action"])
		assert.Equal(t, "no_token", body["status"])
	})

	t.Run("versioned update is accepted", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/v1/sync/messages", `{"action": "tokenUpdate", "token": "ghp_x", "version": 1760000000000000000}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "success", body["status"])
	})

	invalid := []struct {
		name string
		body string
	}{
		{"not json", `{"action":`},
		{"missing action", `{"token": "x"}`},
		{"unknown action", `{"action": "reboot"}`},
		{"token update without token", `{"action": "tokenUpdate"}`},
		{"token update with empty token", `{"action": "tokenUpdate", "token": ""}`},
		{"api key update without key", `{"action": "apiKeyUpdate"}`},
		{"wrong token type", `{"action": "tokenUpdate", "token": 42}`},
		{"negative version", `{"action": "tokenClear", "version": -1}`},
		{"fractional version", `{"action": "tokenClear", "version": 1.5}`},
	}
	for _, tc := range invalid {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPost, "/v1/sync/messages", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPairingSecretGuardsV1Routes(t *testing.T) {
	env := setupTestAPI(t, true)

	for _, secret := range []string{"", "guess"} {
		resp, body := env.doAs(t, secret, http.MethodPost, "/v1/sync/messages", `{"action": "requestToken"}`)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Nil(t, body["token"])

		resp, _ = env.doAs(t, secret, http.MethodPost, "/v1/auth/token", `{"token": "ghp_planted"}`)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = env.doAs(t, secret, http.MethodGet, "/v1/state", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	select {
	case ev := <-env.bus.Events():
		t.Fatalf("unauthenticated message reached the channel: %v", ev.Message.Kind)
	default:
	}

	resp, _ := env.doAs(t, "", http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRouter_RequiresPairingSecret(t *testing.T) {
	_, err := NewRouter(Deps{Inbox: transport.NewBus(1), Account: &fakeAccount{}}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	assert.Error(t, err)
}

func TestSyncMessages_NoConsumer(t *testing.T) {
	env := setupTestAPI(t, false)

	resp, _ := env.do(t, http.MethodPost, "/v1/sync/messages", `{"action": "tokenClear"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAuthRoutes(t *testing.T) {
	env := setupTestAPI(t, false)

	resp, body := env.do(t, http.MethodPost, "/v1/auth/token", `{"token": "ghp_1234567890abcdef"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "octocat", body["login"])
	assert.Equal(t, "ghp_123456...", body["token"])

	resp, _ = env.do(t, http.MethodPut, "/v1/auth/apikey", `{"key": "sk-1"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "sk-1", env.account.key)

	resp, _ = env.do(t, http.MethodDelete, "/v1/auth/token", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, env.account.logout)

	env.account.err = custom_errors.ErrNotAuthenticated
	resp, _ = env.do(t, http.MethodPost, "/v1/auth/token", `{"token": "ghp_bad"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCoordinatorRoutesAbsentOnPrimary(t *testing.T) {
	env := setupTestAPI(t, false)

	resp, _ := env.do(t, http.MethodGet, "/v1/state", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestRoutes(t *testing.T) {
	env := setupTestAPI(t, true)
	repo := model.Repository{GithubRepoID: 42, FullName: "octo/app", DefaultBranch: "main"}

	t.Run("select by full name", func(t *testing.T) {
		env.coord.On("Repositories", mock.Anything).Return([]model.Repository{repo}, nil).Once()
		env.coord.On("SelectRepository", mock.Anything, int64(42)).Return(repo, nil).Once()

		resp, body := env.do(t, http.MethodPut, "/v1/repositories/selected", `{"full_name": "Octo/App"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "octo/app", body["full_name"])
	})

	t.Run("malformed full name", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPut, "/v1/repositories/selected", `{"full_name": "octo"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("voice input without repository", func(t *testing.T) {
		env.coord.On("BeginVoiceInput").Return(custom_errors.Precondition("no repository selected")).Once()

		resp, body := env.do(t, http.MethodPost, "/v1/requests/voice", "")
		assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
		assert.Equal(t, "no repository selected", body["error"])
	})

	t.Run("transcript while busy", func(t *testing.T) {
		env.coord.On("SubmitTranscript", mock.Anything, "todo").Return(model.CodeGenerationResult{}, custom_errors.ErrBusy).Once()

		resp, _ := env.do(t, http.MethodPost, "/v1/requests/transcript", `{"transcript": "todo"}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("approve failure keeps partial commits", func(t *testing.T) {
		records := []model.CommitRecord{{Path: "index.html", CommitSHA: "c1"}}
		env.coord.On("Approve", mock.Anything).Return(records, &custom_errors.APIError{StatusCode: 500}).Once()

		resp, body := env.do(t, http.MethodPost, "/v1/requests/approve", "")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Len(t, body["commits"], 1)
		assert.Contains(t, body["error"], "HTTP 500")
	})

	t.Run("state", func(t *testing.T) {
		env.coord.On("Snapshot").Return(coordinator.Snapshot{State: coordinator.Reviewing}).Once()

		resp, body := env.do(t, http.MethodGet, "/v1/state", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "reviewing", body["state"])
	})

	env.coord.AssertExpectations(t)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{custom_errors.Precondition("x"), http.StatusPreconditionFailed},
		{custom_errors.ErrBusy, http.StatusConflict},
		{custom_errors.ErrSuperseded, http.StatusConflict},
		{custom_errors.ErrNotAuthenticated, http.StatusUnauthorized},
		{&custom_errors.NetworkError{Op: "x", Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{&custom_errors.GenerationError{Err: context.Canceled}, http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
