// Package coordinator drives one voice request at a time from transcript to commit.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

var timeNow = time.Now

// Generator turns a transcript into file changes.
type Generator interface {
	Generate(ctx context.Context, transcript string, repo *model.Repository) (model.CodeGenerationResult, error)
}

// RepositoryEngine is the remote repository API the coordinator commits through.
type RepositoryEngine interface {
	SetToken(token model.AuthToken)
	ClearToken()
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	CreateRepository(ctx context.Context, name, description string, private bool) (model.Repository, error)
	CreateBranch(ctx context.Context, repo model.Repository, newName, fromName string) error
	CommitFiles(ctx context.Context, repo model.Repository, files []model.FileChange, message, branch string) ([]model.CommitRecord, error)
}

// Snapshot is a copy of the coordinator's state for display.
type Snapshot struct {
	State       State                       `json:"state"`
	Repository  *model.Repository           `json:"repository,omitempty"`
	Request     *model.VoiceRequest         `json:"request,omitempty"`
	Result      *model.CodeGenerationResult `json:"result,omitempty"`
	LastCommits []model.CommitRecord        `json:"last_commits,omitempty"`
	LastError   string                      `json:"last_error,omitempty"`
}

// Coordinator is the request state machine. Transitions are serialized by mu, which is
// released during network calls; generation detects results that arrive after their
// request was abandoned.
type Coordinator struct {
	gen    Generator
	engine RepositoryEngine
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	repo        *model.Repository
	repos       []model.Repository
	request     *model.VoiceRequest
	result      *model.CodeGenerationResult
	lastCommits []model.CommitRecord
	lastErr     error
	generation  uint64
}

// New returns a coordinator in the Unauthenticated state.
func New(gen Generator, engine RepositoryEngine, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		gen:    gen,
		engine: engine,
		logger: logger.With("component", "coordinator"),
		state:  Unauthenticated,
	}
}

// TokenChanged implements devicesync.TokenObserver.
func (c *Coordinator) TokenChanged(tok model.AuthToken, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok && tok.Usable(timeNow()) {
		c.engine.SetToken(tok)
		if c.state == Unauthenticated {
			c.transition(Idle)
		}
		return
	}

	c.engine.ClearToken()
	if c.state != Unauthenticated {
		c.abandon()
		c.nextGeneration()
		c.transition(Unauthenticated)
	}
}

// Repositories lists the user's repositories and remembers them for SelectRepository.
func (c *Coordinator) Repositories(ctx context.Context) ([]model.Repository, error) {
	c.mu.Lock()
	if c.state == Unauthenticated {
		c.mu.Unlock()
		return nil, custom_errors.ErrNotAuthenticated
	}
	c.mu.Unlock()

	repos, err := c.engine.ListRepositories(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.noteRemoteError(err)
		return nil, err
	}
	c.repos = repos
	return repos, nil
}

// SelectRepository makes the repository with id the commit target.
func (c *Coordinator) SelectRepository(ctx context.Context, id int64) (model.Repository, error) {
	c.mu.Lock()
	repo, found := c.knownRepository(id)
	c.mu.Unlock()

	if !found {
		if _, err := c.Repositories(ctx); err != nil {
			return model.Repository{}, err
		}
		c.mu.Lock()
		repo, found = c.knownRepository(id)
		c.mu.Unlock()
		if !found {
			return model.Repository{}, custom_errors.Precondition("unknown repository")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardSelection(); err != nil {
		return model.Repository{}, err
	}
	c.repo = &repo
	c.logger.Info("Repository selected", "repo", repo.FullName)
	return repo, nil
}

// CreateRepository creates a repository and selects it.
func (c *Coordinator) CreateRepository(ctx context.Context, name, description string, private bool) (model.Repository, error) {
	if strings.TrimSpace(name) == "" {
		return model.Repository{}, custom_errors.Precondition("repository name is required")
	}

	c.mu.Lock()
	if err := c.guardSelection(); err != nil {
		c.mu.Unlock()
		return model.Repository{}, err
	}
	c.mu.Unlock()

	repo, err := c.engine.CreateRepository(ctx, name, description, private)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.noteRemoteError(err)
		return model.Repository{}, err
	}
	c.repos = append([]model.Repository{repo}, c.repos...)
	if c.guardSelection() == nil {
		c.repo = &repo
		c.logger.Info("Repository created and selected", "repo", repo.FullName)
	}
	return repo, nil
}

// BeginVoiceInput moves Idle to AwaitingVoiceInput.
func (c *Coordinator) BeginVoiceInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardVoiceInput(); err != nil {
		return err
	}
	if c.state == Idle {
		c.transition(AwaitingVoiceInput)
	}
	return nil
}

// SubmitTranscript runs generation for transcript and moves to Reviewing. It is accepted in
// Idle (entering voice input implicitly) and in AwaitingVoiceInput.
func (c *Coordinator) SubmitTranscript(ctx context.Context, transcript string) (model.CodeGenerationResult, error) {
	c.mu.Lock()
	if err := c.guardVoiceInput(); err != nil {
		c.mu.Unlock()
		return model.CodeGenerationResult{}, err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		c.mu.Unlock()
		return model.CodeGenerationResult{}, custom_errors.Precondition("transcript is empty")
	}

	repo := *c.repo
	if c.request == nil {
		c.request = model.NewVoiceRequest(transcript, &repo.GithubRepoID)
	} else {
		c.request.Transcript = transcript
		c.request.TargetRepositoryID = &repo.GithubRepoID
	}
	c.request.Advance(model.RequestStatus{Kind: model.StatusProcessing})
	c.result = nil
	c.lastErr = nil
	c.transition(Generating)
	token := c.nextGeneration()
	logger := c.logger.With("request_id", c.request.ID)
	c.mu.Unlock()

	logger.Info("Generating code", "repo", repo.FullName)
	result, err := c.gen.Generate(ctx, transcript, &repo)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.generation {
		logger.Warn("Discarding stale generation result")
		return model.CodeGenerationResult{}, custom_errors.ErrSuperseded
	}

	if err != nil {
		logger.Error("Code generation failed", "error", err)
		c.request.Advance(model.Failed(err.Error()))
		c.lastErr = err
		c.abandon()
		c.transition(Idle)
		return model.CodeGenerationResult{}, err
	}

	c.request.Advance(model.RequestStatus{Kind: model.StatusReviewing})
	c.result = &result
	c.transition(Reviewing)
	return result, nil
}

// Reject discards the result under review and returns to voice input for the same request.
func (c *Coordinator) Reject() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardReview(); err != nil {
		return err
	}
	c.result = nil
	c.request.Advance(model.RequestStatus{Kind: model.StatusTranscribing})
	c.transition(AwaitingVoiceInput)
	return nil
}

// Approve commits the result under review, one file at a time, and always ends in Idle
// (or Unauthenticated when the token was refused). The records of files pushed before a
// failure are returned with the error.
func (c *Coordinator) Approve(ctx context.Context) ([]model.CommitRecord, error) {
	c.mu.Lock()
	if err := c.guardReview(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	repo := *c.repo
	result := *c.result
	c.request.Advance(model.RequestStatus{Kind: model.StatusCommitting})
	c.transition(Committing)
	token := c.nextGeneration()
	logger := c.logger.With("request_id", c.request.ID, "repo", repo.FullName)
	c.mu.Unlock()

	records, err := c.commit(ctx, logger, repo, result)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.generation {
		logger.Warn("Discarding stale commit result", "committed", len(records))
		return records, custom_errors.ErrSuperseded
	}

	c.lastCommits = records
	if err != nil {
		logger.Error("Commit failed", "error", err, "committed", len(records))
		c.request.Advance(model.Failed(err.Error()))
		c.lastErr = err
		c.abandon()
		if errors.Is(err, custom_errors.ErrNotAuthenticated) {
			c.engine.ClearToken()
			c.transition(Unauthenticated)
		} else {
			c.transition(Idle)
		}
		return records, err
	}

	c.request.Advance(model.RequestStatus{Kind: model.StatusCompleted})
	logger.Info("Request completed", "files", len(records))
	c.abandon()
	c.transition(Idle)
	return records, nil
}

func (c *Coordinator) commit(ctx context.Context, logger *slog.Logger, repo model.Repository, result model.CodeGenerationResult) ([]model.CommitRecord, error) {
	branch := ""
	if result.BranchOverride != nil && *result.BranchOverride != "" {
		branch = *result.BranchOverride
		logger.Info("Creating branch", "branch", branch, "from", repo.DefaultBranch)
		if err := c.engine.CreateBranch(ctx, repo, branch, repo.DefaultBranch); err != nil {
			return nil, err
		}
	}
	return c.engine.CommitFiles(ctx, repo, result.Files, result.CommitMessage, branch)
}

// ReturnToIdle abandons whatever request is active. Results of in-flight calls are dropped
// when they arrive.
func (c *Coordinator) ReturnToIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Unauthenticated {
		return custom_errors.ErrNotAuthenticated
	}
	if c.request != nil && !c.request.Status.Terminal() {
		c.request.Advance(model.Failed("abandoned"))
	}
	c.abandon()
	c.nextGeneration()
	c.transition(Idle)
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{State: c.state}
	if c.repo != nil {
		repo := *c.repo
		s.Repository = &repo
	}
	if c.request != nil {
		req := *c.request
		s.Request = &req
	}
	if c.result != nil {
		result := *c.result
		s.Result = &result
	}
	s.LastCommits = append(s.LastCommits, c.lastCommits...)
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) guardVoiceInput() error {
	switch c.state {
	case Unauthenticated:
		return custom_errors.ErrNotAuthenticated
	case Generating, Reviewing, Committing:
		return custom_errors.ErrBusy
	}
	if c.repo == nil {
		return custom_errors.Precondition("no repository selected")
	}
	return nil
}

func (c *Coordinator) guardReview() error {
	switch c.state {
	case Reviewing:
		return nil
	case Unauthenticated:
		return custom_errors.ErrNotAuthenticated
	}
	if c.state.inFlight() {
		return custom_errors.ErrBusy
	}
	return custom_errors.Precondition("no result to review")
}

func (c *Coordinator) guardSelection() error {
	switch c.state {
	case Unauthenticated:
		return custom_errors.ErrNotAuthenticated
	case Generating, Reviewing, Committing:
		return custom_errors.ErrBusy
	}
	return nil
}

func (c *Coordinator) knownRepository(id int64) (model.Repository, bool) {
	for _, r := range c.repos {
		if r.GithubRepoID == id {
			return r, true
		}
	}
	return model.Repository{}, false
}

// noteRemoteError routes a refused token back to Unauthenticated. mu must be held.
func (c *Coordinator) noteRemoteError(err error) {
	if !errors.Is(err, custom_errors.ErrNotAuthenticated) || c.state.inFlight() {
		return
	}
	c.engine.ClearToken()
	c.abandon()
	c.nextGeneration()
	c.transition(Unauthenticated)
}

// abandon drops the active request and its result. mu must be held.
func (c *Coordinator) abandon() {
	c.request = nil
	c.result = nil
}

func (c *Coordinator) nextGeneration() uint64 {
	c.generation++
	return c.generation
}

func (c *Coordinator) transition(to State) {
	if c.state == to {
		return
	}
	c.logger.Info("State transition", "from", c.state, "to", to)
	c.state = to
}
