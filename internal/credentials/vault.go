package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	custom_errors "voice-commit/internal/errors"
	"voice-commit/internal/model"
)

const (
	tokenKey  = "github_token"
	apiKeyKey = "generator_api_key"
)

type storedToken struct {
	Value      string     `json:"value,omitempty"`
	OwnerLogin string     `json:"owner_login,omitempty"`
	Scope      *string    `json:"scope,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Version    int64      `json:"version"`
}

type storedKey struct {
	Key     string `json:"key,omitempty"`
	Version int64  `json:"version"`
}

// TokenRecord is the stored token state. A cleared token is kept as a record without a value
// so its version outlives the token.
type TokenRecord struct {
	Token   model.AuthToken
	Version int64
}

// Present reports whether the record holds a token.
func (r TokenRecord) Present() bool {
	return r.Token.Value != ""
}

// Vault reads and writes the typed credentials of this app on top of a Store.
type Vault struct {
	store Store
}

func NewVault(store Store) *Vault {
	return &Vault{store: store}
}

// LoadToken returns the stored token state. The zero record means nothing was ever stored.
func (v *Vault) LoadToken(ctx context.Context) (TokenRecord, error) {
	var st storedToken
	found, err := v.load(ctx, tokenKey, &st)
	if err != nil || !found {
		return TokenRecord{}, err
	}
	rec := TokenRecord{Version: st.Version}
	if st.Value != "" {
		rec.Token = model.NewAuthToken(st.Value, st.OwnerLogin, st.ExpiresAt)
		rec.Token.IssuedScope = st.Scope
	}
	return rec, nil
}

func (v *Vault) SaveToken(ctx context.Context, tok model.AuthToken, version int64) error {
	return v.save(ctx, tokenKey, storedToken{
		Value:      tok.Value,
		OwnerLogin: tok.OwnerLogin,
		Scope:      tok.IssuedScope,
		ExpiresAt:  tok.ExpiresAt,
		Version:    version,
	})
}

// ClearToken drops the token and remembers the version it was cleared at.
func (v *Vault) ClearToken(ctx context.Context, version int64) error {
	return v.save(ctx, tokenKey, storedToken{Version: version})
}

// LoadAPIKey returns the stored generator key and its version; "" when none is stored.
func (v *Vault) LoadAPIKey(ctx context.Context) (string, int64, error) {
	var sk storedKey
	if _, err := v.load(ctx, apiKeyKey, &sk); err != nil {
		return "", 0, err
	}
	return sk.Key, sk.Version, nil
}

// SaveAPIKey stores key as of version. An empty key removes it but keeps the version.
func (v *Vault) SaveAPIKey(ctx context.Context, key string, version int64) error {
	return v.save(ctx, apiKeyKey, storedKey{Key: key, Version: version})
}

func (v *Vault) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := v.store.Get(ctx, key)
	if errors.Is(err, custom_errors.ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (v *Vault) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return v.store.Put(ctx, key, string(raw))
}
