package devicesync

import (
	"context"
	"strings"
	"time"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

// TokenValidator resolves the login a token belongs to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token model.AuthToken) (string, error)
}

// Account is the local sign-in surface: it validates credentials before handing them to
// the channel for storage and propagation.
type Account struct {
	channel   *Channel
	validator TokenValidator
}

func NewAccount(channel *Channel, validator TokenValidator) *Account {
	return &Account{channel: channel, validator: validator}
}

// Login validates value against the remote API, then stores and publishes it.
func (a *Account) Login(ctx context.Context, value string, expiresAt *time.Time) (model.AuthToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.AuthToken{}, custom_errors.Precondition("token is required")
	}

	tok := model.NewAuthToken(value, "", expiresAt)
	if !tok.Usable(a.channel.now()) {
		return model.AuthToken{}, custom_errors.Precondition("token is already expired")
	}

	login, err := a.validator.ValidateToken(ctx, tok)
	if err != nil {
		return model.AuthToken{}, err
	}
	tok.OwnerLogin = login

	if err := a.channel.PublishToken(ctx, tok); err != nil {
		return model.AuthToken{}, err
	}
	return tok, nil
}

// Logout removes the token here and on the peer.
func (a *Account) Logout(ctx context.Context) error {
	return a.channel.PublishClear(ctx)
}

// SetAPIKey stores and publishes the generator key. An empty key removes it.
func (a *Account) SetAPIKey(ctx context.Context, key string) error {
	return a.channel.PublishAPIKey(ctx, strings.TrimSpace(key))
}
