// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

const (
	defaultBaseURL   = "https://api.github.com/"
	requestTimeout   = 30 * time.Second
	maxRepositories  = 50
	branchRefPrefix  = "refs/heads/"
	refAlreadyExists = "already exists"
)

// Client is a wrapper around the go-github client. It authenticates every request with the
// token most recently handed to it via SetToken.
type Client struct {
	gh     *github.Client
	tokens *tokenSource
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance. An empty baseURL targets api.github.com.
func NewClient(baseURL, userAgent string, logger *slog.Logger) (*Client, error) {
	ts := &tokenSource{}
	// oauth2.Transport asks ts on every request; SetToken applies to the next call.
	httpClient := &http.Client{
		Timeout:   requestTimeout,
		Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
	}

	gh := github.NewClient(httpClient)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse GitHub API URL: %w", err)
	}
	gh.BaseURL = u
	if userAgent != "" {
		gh.UserAgent = userAgent
	}

	return &Client{gh: gh, tokens: ts, logger: logger}, nil
}

// SetToken hands the client the token to use for subsequent calls.
func (c *Client) SetToken(token model.AuthToken) {
	c.tokens.set(&token)
	c.logger.Info("GitHub token updated", "token", token.Redacted(), "kind", token.Kind)
}

// ClearToken drops the current token; later calls fail with ErrNotAuthenticated.
func (c *Client) ClearToken() {
	c.tokens.set(nil)
	c.logger.Info("GitHub token cleared")
}

// CurrentUser returns the login the current token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	if err := c.tokens.check(); err != nil {
		return "", err
	}
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", classify("get user", resp, err)
	}
	return user.GetLogin(), nil
}

// ValidateToken returns the login token belongs to without replacing the client's token.
func (c *Client) ValidateToken(ctx context.Context, token model.AuthToken) (string, error) {
	scratch, err := NewClient(c.gh.BaseURL.String(), c.gh.UserAgent, c.logger)
	if err != nil {
		return "", err
	}
	scratch.tokens.set(&token)
	return scratch.CurrentUser(ctx)
}

// ListRepositories fetches the authenticated user's most recently updated repositories.
func (c *Client) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	if err := c.tokens.check(); err != nil {
		return nil, err
	}

	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: maxRepositories},
	}

	var all []model.Repository
	for {
		c.logger.Debug("Fetching repositories page", "page", opts.Page)

		repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, classify("list repositories", resp, err)
		}
		for _, r := range repos {
			all = append(all, toInternalRepository(r))
		}

		if resp.NextPage == 0 || len(all) >= maxRepositories {
			break
		}
		opts.Page = resp.NextPage
	}

	if len(all) > maxRepositories {
		all = all[:maxRepositories]
	}
	return all, nil
}

// CreateRepository creates an initialised repository owned by the authenticated user.
func (c *Client) CreateRepository(ctx context.Context, name, description string, private bool) (model.Repository, error) {
	if err := c.tokens.check(); err != nil {
		return model.Repository{}, err
	}

	req := &github.Repository{
		Name:     github.String(name),
		Private:  github.Bool(private),
		AutoInit: github.Bool(true),
	}
	if description != "" {
		req.Description = github.String(description)
	}

	repo, resp, err := c.gh.Repositories.Create(ctx, "", req)
	if err != nil {
		return model.Repository{}, classify("create repository", resp, err)
	}
	c.logger.Info("Created repository", "repo", repo.GetFullName())
	return toInternalRepository(repo), nil
}

// GetBranchSHA returns the tip commit SHA of branch.
func (c *Client) GetBranchSHA(ctx context.Context, repo model.Repository, branch string) (string, error) {
	if err := c.tokens.check(); err != nil {
		return "", err
	}
	b, resp, err := c.gh.Repositories.GetBranch(ctx, repo.Owner, repo.Name, branch, 1)
	if err != nil {
		return "", classify("get branch", resp, err)
	}
	return b.GetCommit().GetSHA(), nil
}

// CreateBranch creates refs/heads/<newName> at the tip of fromName. A branch that already
// exists is treated as usable.
func (c *Client) CreateBranch(ctx context.Context, repo model.Repository, newName, fromName string) error {
	logger := c.logger.With("repo", repo.FullName, "branch", newName, "from", fromName)

	sha, err := c.GetBranchSHA(ctx, repo, fromName)
	if err != nil {
		return err
	}

	ref := &github.Reference{
		Ref:    github.String(branchRefPrefix + newName),
		Object: &github.GitObject{SHA: github.String(sha)},
	}
	_, resp, err := c.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, ref)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil &&
			ghErr.Response.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(strings.ToLower(ghErr.Message), refAlreadyExists) {
			logger.Warn("Branch already exists, using it as-is")
			return nil
		}
		return classify("create ref", resp, err)
	}

	logger.Info("Created branch", "sha", sha)
	return nil
}

// GetFileSHA looks up the blob SHA of path on branch. It returns ErrFileNotFound when the
// path does not exist there.
func (c *Client) GetFileSHA(ctx context.Context, repo model.Repository, path, branch string) (string, error) {
	if err := c.tokens.check(); err != nil {
		return "", err
	}
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, &github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", custom_errors.ErrFileNotFound
		}
		return "", classify("get contents", resp, err)
	}
	if file == nil {
		// A directory listing lives at this path.
		return "", custom_errors.ErrFileNotFound
	}
	return file.GetSHA(), nil
}

// CommitFile writes content to path on branch, creating the file or updating it in place.
func (c *Client) CommitFile(ctx context.Context, repo model.Repository, path, content, message, branch string) (model.CommitRecord, error) {
	if err := c.tokens.check(); err != nil {
		return model.CommitRecord{}, err
	}
	branch = c.targetBranch(repo, branch)
	logger := c.logger.With("repo", repo.FullName, "path", path, "branch", branch)

	sha, err := c.GetFileSHA(ctx, repo, path, branch)
	if err != nil && !errors.Is(err, custom_errors.ErrFileNotFound) {
		return model.CommitRecord{}, err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
	}
	if branch != "" {
		opts.Branch = github.String(branch)
	}

	var (
		result *github.RepositoryContentResponse
		resp   *github.Response
	)
	if sha != "" {
		logger.Debug("Updating existing file", "blob_sha", sha)
		opts.SHA = github.String(sha)
		result, resp, err = c.gh.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, path, opts)
	} else {
		logger.Debug("Creating new file")
		result, resp, err = c.gh.Repositories.CreateFile(ctx, repo.Owner, repo.Name, path, opts)
	}
	if err != nil {
		return model.CommitRecord{}, classify("put contents", resp, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return model.CommitRecord{}, &custom_errors.APIError{StatusCode: resp.StatusCode, Body: "unexpected status for contents update"}
	}

	record := toCommitRecord(path, result)
	logger.Info("Committed file", "commit_sha", record.CommitSHA)
	return record, nil
}

// CommitFiles commits each create/update entry in order and stops at the first failure.
// Records for files committed before the failure are returned alongside the error; they are
// not rolled back. Delete entries are accepted but not applied.
func (c *Client) CommitFiles(ctx context.Context, repo model.Repository, files []model.FileChange, message, branch string) ([]model.CommitRecord, error) {
	records := make([]model.CommitRecord, 0, len(files))
	if len(files) == 0 {
		return records, nil
	}

	for i, f := range files {
		switch f.Operation {
		case model.OperationDelete:
			c.logger.Warn("Skipping delete operation, not supported", "path", f.Path)
			continue
		case model.OperationCreate, model.OperationUpdate, "":
		default:
			return records, fmt.Errorf("file %d (%s): unknown operation %q", i+1, f.Path, f.Operation)
		}

		record, err := c.CommitFile(ctx, repo, f.Path, f.Content, message, branch)
		if err != nil {
			return records, fmt.Errorf("file %d of %d (%s): %w", i+1, len(files), f.Path, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *Client) targetBranch(repo model.Repository, branch string) string {
	if branch != "" {
		return branch
	}
	return repo.DefaultBranch
}

// classify maps go-github failures onto the engine's error taxonomy.
func classify(op string, resp *github.Response, err error) error {
	if errors.Is(err, custom_errors.ErrNotAuthenticated) {
		return custom_errors.ErrNotAuthenticated
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return &custom_errors.APIError{StatusCode: rateErr.Response.StatusCode, Body: rateErr.Message}
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		if ghErr.Response.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%s: %w", op, custom_errors.ErrNotAuthenticated)
		}
		return &custom_errors.APIError{StatusCode: ghErr.Response.StatusCode, Body: ghErr.Message}
	}
	if resp != nil && resp.Response != nil && resp.StatusCode >= http.StatusBadRequest {
		return &custom_errors.APIError{StatusCode: resp.StatusCode, Body: err.Error()}
	}
	return &custom_errors.NetworkError{Op: op, Err: err}
}

// toInternalRepository translates a github.Repository object to our internal model.Repository.
func toInternalRepository(r *github.Repository) model.Repository {
	return model.Repository{
		GithubRepoID:  r.GetID(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		HTMLURL:       r.GetHTMLURL(),
		CloneURL:      r.GetCloneURL(),
	}
}

// toCommitRecord translates a contents API response to a model.CommitRecord.
func toCommitRecord(path string, r *github.RepositoryContentResponse) model.CommitRecord {
	record := model.CommitRecord{Path: path}
	if r == nil {
		return record
	}
	record.BlobSHA = r.GetContent().GetSHA()
	record.CommitSHA = r.Commit.GetSHA()
	record.URL = r.Commit.GetHTMLURL()
	if record.URL == "" {
		record.URL = r.GetContent().GetHTMLURL()
	}
	if author := r.Commit.GetAuthor(); author != nil {
		record.AuthorIdentity = fmt.Sprintf("%s <%s>", author.GetName(), author.GetEmail())
	}
	return record
}

// tokenSource serves the most recent token to oauth2.Transport.
type tokenSource struct {
	mu    sync.RWMutex
	token *model.AuthToken
}

func (s *tokenSource) set(t *model.AuthToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = t
}

func (s *tokenSource) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil || !s.token.Usable(time.Now()) {
		return custom_errors.ErrNotAuthenticated
	}
	return nil
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil || !s.token.Usable(time.Now()) {
		return nil, custom_errors.ErrNotAuthenticated
	}
	tok := &oauth2.Token{AccessToken: s.token.Value, TokenType: "Bearer"}
	if s.token.ExpiresAt != nil {
		tok.Expiry = *s.token.ExpiresAt
	}
	return tok, nil
}
