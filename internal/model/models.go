// internal/model/models.go
package model

import (
	"strings"
	"time"
)

// TokenKind distinguishes GitHub classic tokens from fine-grained ones.
type TokenKind string

const (
	TokenKindClassic     TokenKind = "classic"
	TokenKindFineGrained TokenKind = "fine-grained"
)

// AuthToken is a GitHub credential. Whichever process authenticated last owns it;
// the peer only ever holds a cached copy.
type AuthToken struct {
	Value       string     `json:"access_token"`
	Kind        TokenKind  `json:"token_type"`
	IssuedScope *string    `json:"scope,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	OwnerLogin  string     `json:"owner_login,omitempty"`
}

// NewAuthToken builds a token, deriving its kind from the GitHub prefix.
func NewAuthToken(value, ownerLogin string, expiresAt *time.Time) AuthToken {
	return AuthToken{
		Value:      value,
		Kind:       KindForToken(value),
		ExpiresAt:  expiresAt,
		OwnerLogin: ownerLogin,
	}
}

// KindForToken classifies a token value by prefix.
func KindForToken(value string) TokenKind {
	if strings.HasPrefix(value, "github_pat_") {
		return TokenKindFineGrained
	}
	return TokenKindClassic
}

// Usable reports whether the token has a value and has not expired at now.
func (t AuthToken) Usable(now time.Time) bool {
	if t.Value == "" {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// Redacted returns a short prefix suitable for logs.
func (t AuthToken) Redacted() string {
	if len(t.Value) <= 10 {
		return "***"
	}
	return t.Value[:10] + "..."
}

// Repository is a remote repository as fetched from GitHub. Identity is GithubRepoID.
type Repository struct {
	GithubRepoID  int64  `json:"id"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
}

// Operation is what a FileChange does to its path.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// FileChange is one file of a generated change set.
type FileChange struct {
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	Operation Operation `json:"operation"`
}

// CodeGenerationResult is produced once per VoiceRequest and never modified.
type CodeGenerationResult struct {
	Files          []FileChange `json:"files"`
	CommitMessage  string       `json:"commit_message"`
	Summary        string       `json:"summary"`
	BranchOverride *string      `json:"branch_name,omitempty"`
}

// CommitRecord describes one file pushed to the remote.
type CommitRecord struct {
	Path           string `json:"path"`
	BlobSHA        string `json:"blob_sha"`
	CommitSHA      string `json:"commit_sha"`
	URL            string `json:"url"`
	AuthorIdentity string `json:"author"`
}
