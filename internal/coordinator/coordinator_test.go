package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

// MockEngine is a mock of the RepositoryEngine interface.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) SetToken(token model.AuthToken) { m.Called(token.Value) }
func (m *MockEngine) ClearToken()                     { m.Called() }
func (m *MockEngine) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Repository), args.Error(1)
}
func (m *MockEngine) CreateRepository(ctx context.Context, name, description string, private bool) (model.Repository, error) {
	args := m.Called(ctx, name, description, private)
	return args.Get(0).(model.Repository), args.Error(1)
}
func (m *MockEngine) CreateBranch(ctx context.Context, repo model.Repository, newName, fromName string) error {
	args := m.Called(ctx, repo, newName, fromName)
	return args.Error(0)
}
func (m *MockEngine) CommitFiles(ctx context.Context, repo model.Repository, files []model.FileChange, message, branch string) ([]model.CommitRecord, error) {
	args := m.Called(ctx, repo, files, message, branch)
	return args.Get(0).([]model.CommitRecord), args.Error(1)
}

// stubGenerator returns a fixed result, optionally waiting for release first.
type stubGenerator struct {
	result  model.CodeGenerationResult
	err     error
	started chan struct{}
	release chan struct{}
	calls   int
}

func (g *stubGenerator) Generate(ctx context.Context, transcript string, repo *model.Repository) (model.CodeGenerationResult, error) {
	g.calls++
	if g.started != nil {
		close(g.started)
	}
	if g.release != nil {
		<-g.release
	}
	return g.result, g.err
}

var testRepo = model.Repository{GithubRepoID: 42, Owner: "octo", Name: "app", FullName: "octo/app", DefaultBranch: "main"}

var twoFiles = model.CodeGenerationResult{
	Files: []model.FileChange{
		{Path: "index.html", Content: "<p>hi</p>", Operation: model.OperationCreate},
		{Path: "app.js", Content: "let a;", Operation: model.OperationCreate},
	},
	CommitMessage: "Create Todo List App via voice command",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newReady returns a coordinator that is authenticated and has testRepo selected.
func newReady(t *testing.T, gen Generator) (*Coordinator, *MockEngine) {
	t.Helper()
	engine := new(MockEngine)
	engine.On("SetToken", "ghp_valid").Return()
	engine.On("ListRepositories", mock.Anything).Return([]model.Repository{testRepo}, nil).Once()

	c := New(gen, engine, testLogger())
	c.TokenChanged(model.NewAuthToken("ghp_valid", "octocat", nil), true)
	_, err := c.SelectRepository(context.Background(), testRepo.GithubRepoID)
	require.NoError(t, err)
	require.Equal(t, Idle, c.State())
	return c, engine
}

func TestCoordinator_Authentication(t *testing.T) {
	engine := new(MockEngine)
	c := New(&stubGenerator{}, engine, testLogger())

	assert.Equal(t, Unauthenticated, c.State())
	assert.ErrorIs(t, c.BeginVoiceInput(), custom_errors.ErrNotAuthenticated)

	expired := time.Now().Add(-time.Hour)
	engine.On("ClearToken").Return()
	c.TokenChanged(model.NewAuthToken("ghp_old", "", &expired), true)
	assert.Equal(t, Unauthenticated, c.State())

	engine.On("SetToken", "ghp_new").Return()
	c.TokenChanged(model.NewAuthToken("ghp_new", "", nil), true)
	assert.Equal(t, Idle, c.State())

	c.TokenChanged(model.AuthToken{}, false)
	assert.Equal(t, Unauthenticated, c.State())
	engine.AssertExpectations(t)
}

func TestCoordinator_NoRepositorySelected(t *testing.T) {
	engine := new(MockEngine)
	engine.On("SetToken", mock.Anything).Return()
	gen := &stubGenerator{result: twoFiles}
	c := New(gen, engine, testLogger())
	c.TokenChanged(model.NewAuthToken("ghp_valid", "", nil), true)

	err := c.BeginVoiceInput()
	var precondition *custom_errors.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Equal(t, "no repository selected", precondition.Reason)

	_, err = c.SubmitTranscript(context.Background(), "build me a todo app")
	assert.ErrorAs(t, err, &precondition)
	assert.Equal(t, Idle, c.State())
	assert.Zero(t, gen.calls)
}

func TestCoordinator_EmptyTranscript(t *testing.T) {
	gen := &stubGenerator{result: twoFiles}
	c, _ := newReady(t, gen)
	require.NoError(t, c.BeginVoiceInput())

	_, err := c.SubmitTranscript(context.Background(), "   ")

	var precondition *custom_errors.PreconditionError
	assert.ErrorAs(t, err, &precondition)
	assert.Equal(t, AwaitingVoiceInput, c.State())
	assert.Zero(t, gen.calls)
}

func TestCoordinator_HappyPath(t *testing.T) {
	ctx := context.Background()
	c, engine := newReady(t, &stubGenerator{result: twoFiles})

	require.NoError(t, c.BeginVoiceInput())
	assert.Equal(t, AwaitingVoiceInput, c.State())

	result, err := c.SubmitTranscript(ctx, "build me a todo app")
	require.NoError(t, err)
	assert.Equal(t, twoFiles, result)

	snap := c.Snapshot()
	assert.Equal(t, Reviewing, snap.State)
	require.NotNil(t, snap.Request)
	assert.Equal(t, model.StatusReviewing, snap.Request.Status.Kind)
	assert.Equal(t, int64(42), *snap.Request.TargetRepositoryID)
	require.NotNil(t, snap.Result)

	records := []model.CommitRecord{{Path: "index.html", CommitSHA: "c1"}, {Path: "app.js", CommitSHA: "c2"}}
	engine.On("CommitFiles", mock.Anything, testRepo, twoFiles.Files, twoFiles.CommitMessage, "").Return(records, nil).Once()

	got, err := c.Approve(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	snap = c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.Request)
	assert.Nil(t, snap.Result)
	assert.Equal(t, records, snap.LastCommits)
	engine.AssertExpectations(t)
}

func TestCoordinator_ApproveFailure(t *testing.T) {
	c, engine := newReady(t, &stubGenerator{result: twoFiles})
	_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
	require.NoError(t, err)

	partial := []model.CommitRecord{{Path: "index.html", CommitSHA: "c1"}}
	apiErr := &custom_errors.APIError{StatusCode: 500, Body: "boom"}
	engine.On("CommitFiles", mock.Anything, testRepo, twoFiles.Files, mock.Anything, "").Return(partial, apiErr).Once()

	records, err := c.Approve(context.Background())

	var gotAPIErr *custom_errors.APIError
	require.ErrorAs(t, err, &gotAPIErr)
	assert.Equal(t, 500, gotAPIErr.StatusCode)
	assert.Equal(t, partial, records)
	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Contains(t, snap.LastError, "HTTP 500")
}

func TestCoordinator_ApproveNotAuthenticated(t *testing.T) {
	c, engine := newReady(t, &stubGenerator{result: twoFiles})
	_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
	require.NoError(t, err)

	engine.On("CommitFiles", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]model.CommitRecord{}, custom_errors.ErrNotAuthenticated).Once()
	engine.On("ClearToken").Return().Once()

	_, err = c.Approve(context.Background())

	assert.ErrorIs(t, err, custom_errors.ErrNotAuthenticated)
	assert.Equal(t, Unauthenticated, c.State())
	engine.AssertExpectations(t)
}

func TestCoordinator_BranchOverride(t *testing.T) {
	branch := "feature/voice-1"
	result := twoFiles
	result.BranchOverride = &branch
	c, engine := newReady(t, &stubGenerator{result: result})
	_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
	require.NoError(t, err)

	engine.On("CreateBranch", mock.Anything, testRepo, branch, "main").Return(nil).Once()
	engine.On("CommitFiles", mock.Anything, testRepo, result.Files, result.CommitMessage, branch).
		Return([]model.CommitRecord{{Path: "index.html"}}, nil).Once()

	_, err = c.Approve(context.Background())
	require.NoError(t, err)
	engine.AssertExpectations(t)
}

func TestCoordinator_BranchCreationFailure(t *testing.T) {
	branch := "feature/voice-2"
	result := twoFiles
	result.BranchOverride = &branch
	c, engine := newReady(t, &stubGenerator{result: result})
	_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
	require.NoError(t, err)

	engine.On("CreateBranch", mock.Anything, testRepo, branch, "main").Return(&custom_errors.APIError{StatusCode: 404}).Once()

	_, err = c.Approve(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Idle, c.State())
	engine.AssertNotCalled(t, "CommitFiles", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinator_GenerationFailure(t *testing.T) {
	genErr := &custom_errors.GenerationError{Err: errors.New("empty transcript")}
	c, _ := newReady(t, &stubGenerator{err: genErr})

	_, err := c.SubmitTranscript(context.Background(), "anything")

	assert.ErrorIs(t, err, genErr)
	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.Request)
	assert.NotEmpty(t, snap.LastError)
}

func TestCoordinator_RejectKeepsRequest(t *testing.T) {
	gen := &stubGenerator{result: twoFiles}
	c, _ := newReady(t, gen)
	_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
	require.NoError(t, err)
	firstID := c.Snapshot().Request.ID

	require.NoError(t, c.Reject())
	snap := c.Snapshot()
	assert.Equal(t, AwaitingVoiceInput, snap.State)
	assert.Nil(t, snap.Result)
	assert.Equal(t, model.StatusTranscribing, snap.Request.Status.Kind)

	_, err = c.SubmitTranscript(context.Background(), "build me a todo app with dark mode")
	require.NoError(t, err)
	snap = c.Snapshot()
	assert.Equal(t, firstID, snap.Request.ID)
	assert.Equal(t, "build me a todo app with dark mode", snap.Request.Transcript)
	assert.Equal(t, 2, gen.calls)
}

func TestCoordinator_RetargetAfterReject(t *testing.T) {
	other := model.Repository{GithubRepoID: 77, Owner: "octo", Name: "site", FullName: "octo/site", DefaultBranch: "main"}
	c, engine := newReady(t, &stubGenerator{result: twoFiles})
	_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
	require.NoError(t, err)
	require.Equal(t, testRepo.GithubRepoID, *c.Snapshot().Request.TargetRepositoryID)
	require.NoError(t, c.Reject())

	engine.On("ListRepositories", mock.Anything).Return([]model.Repository{testRepo, other}, nil).Once()
	_, err = c.SelectRepository(context.Background(), other.GithubRepoID)
	require.NoError(t, err)
	_, err = c.SubmitTranscript(context.Background(), "build me a landing page")
	require.NoError(t, err)

	snap := c.Snapshot()
	require.NotNil(t, snap.Request.TargetRepositoryID)
	assert.Equal(t, other.GithubRepoID, *snap.Request.TargetRepositoryID)
	assert.Equal(t, other.GithubRepoID, snap.Repository.GithubRepoID)

	engine.On("CommitFiles", mock.Anything, other, twoFiles.Files, twoFiles.CommitMessage, "").Return([]model.CommitRecord{}, nil).Once()
	_, err = c.Approve(context.Background())
	require.NoError(t, err)
	engine.AssertExpectations(t)
}

func TestCoordinator_ReviewGuards(t *testing.T) {
	c, _ := newReady(t, &stubGenerator{result: twoFiles})

	var precondition *custom_errors.PreconditionError
	assert.ErrorAs(t, c.Reject(), &precondition)
	_, err := c.Approve(context.Background())
	assert.ErrorAs(t, err, &precondition)

	_, err = c.SubmitTranscript(context.Background(), "todo")
	require.NoError(t, err)
	assert.ErrorIs(t, c.BeginVoiceInput(), custom_errors.ErrBusy)
	_, err = c.SubmitTranscript(context.Background(), "todo")
	assert.ErrorIs(t, err, custom_errors.ErrBusy)
}

func TestCoordinator_BusyWhileGenerating(t *testing.T) {
	gen := &stubGenerator{result: twoFiles, started: make(chan struct{}), release: make(chan struct{})}
	c, _ := newReady(t, gen)

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
		done <- err
	}()
	<-gen.started

	assert.Equal(t, Generating, c.State())
	assert.ErrorIs(t, c.BeginVoiceInput(), custom_errors.ErrBusy)
	_, err := c.SubmitTranscript(context.Background(), "another one")
	assert.ErrorIs(t, err, custom_errors.ErrBusy)
	_, err = c.Approve(context.Background())
	assert.ErrorIs(t, err, custom_errors.ErrBusy)
	_, err = c.SelectRepository(context.Background(), testRepo.GithubRepoID)
	assert.ErrorIs(t, err, custom_errors.ErrBusy)

	close(gen.release)
	require.NoError(t, <-done)
	assert.Equal(t, Reviewing, c.State())
}

func TestCoordinator_StaleGenerationResult(t *testing.T) {
	gen := &stubGenerator{result: twoFiles, started: make(chan struct{}), release: make(chan struct{})}
	c, _ := newReady(t, gen)

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
		done <- err
	}()
	<-gen.started

	require.NoError(t, c.ReturnToIdle())
	require.NoError(t, c.BeginVoiceInput())

	close(gen.release)
	assert.ErrorIs(t, <-done, custom_errors.ErrSuperseded)

	snap := c.Snapshot()
	assert.Equal(t, AwaitingVoiceInput, snap.State)
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.Request)
}

func TestCoordinator_SignOutDuringGeneration(t *testing.T) {
	gen := &stubGenerator{result: twoFiles, started: make(chan struct{}), release: make(chan struct{})}
	c, engine := newReady(t, gen)
	engine.On("ClearToken").Return()

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitTranscript(context.Background(), "build me a todo app")
		done <- err
	}()
	<-gen.started

	c.TokenChanged(model.AuthToken{}, false)
	close(gen.release)

	assert.ErrorIs(t, <-done, custom_errors.ErrSuperseded)
	assert.Equal(t, Unauthenticated, c.State())
}

func TestCoordinator_Repositories(t *testing.T) {
	ctx := context.Background()
	c, engine := newReady(t, &stubGenerator{})

	engine.On("ListRepositories", mock.Anything).Return([]model.Repository{testRepo}, nil)
	var precondition *custom_errors.PreconditionError
	_, err := c.SelectRepository(ctx, 999)
	assert.ErrorAs(t, err, &precondition)

	created := model.Repository{GithubRepoID: 7, FullName: "octo/new", DefaultBranch: "main"}
	engine.On("CreateRepository", mock.Anything, "new", "voice app", true).Return(created, nil).Once()
	repo, err := c.CreateRepository(ctx, "new", "voice app", true)
	require.NoError(t, err)
	assert.Equal(t, created, repo)
	assert.Equal(t, &created, c.Snapshot().Repository)

	_, err = c.CreateRepository(ctx, " ", "", false)
	assert.ErrorAs(t, err, &precondition)
}

func TestCoordinator_ListUnauthorizedSignsOut(t *testing.T) {
	engine := new(MockEngine)
	engine.On("SetToken", mock.Anything).Return()
	engine.On("ClearToken").Return().Once()
	engine.On("ListRepositories", mock.Anything).Return([]model.Repository(nil), custom_errors.ErrNotAuthenticated)
	c := New(&stubGenerator{}, engine, testLogger())
	c.TokenChanged(model.NewAuthToken("ghp_revoked", "", nil), true)

	_, err := c.Repositories(context.Background())

	assert.ErrorIs(t, err, custom_errors.ErrNotAuthenticated)
	assert.Equal(t, Unauthenticated, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_voice_input", AwaitingVoiceInput.String())
	text, err := Committing.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "committing", string(text))
	assert.Equal(t, "state(99)", State(99).String())
}
