package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	custom_errors "voice-commit/internal/errors"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 512
	anthropicVersion = "2023-06-01"
)

// Backend turns a system instruction and a user prompt into free text.
type Backend interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// KeySource supplies the backend API key. It may change at runtime when a key is synced
// from the paired device.
type KeySource interface {
	APIKey() string
}

// StaticKey is a fixed key, usually from configuration.
type StaticKey string

func (k StaticKey) APIKey() string { return string(k) }

// KeyChain returns the first non-empty key of its sources.
type KeyChain []KeySource

func (c KeyChain) APIKey() string {
	for _, s := range c {
		if s == nil {
			continue
		}
		if k := s.APIKey(); k != "" {
			return k
		}
	}
	return ""
}

// ProviderFormat describes how one provider expects requests and shapes responses.
type ProviderFormat struct {
	Name string
	// SystemSeparate sends the system instruction as a top-level "system" field.
	SystemSeparate bool
	AuthHeader     string
	AuthPrefix     string
	ExtraHeaders   map[string]string
	// ResponsePath locates the generated text, e.g. "content[0].text".
	ResponsePath string
}

var (
	AnthropicFormat = ProviderFormat{
		Name:           "anthropic",
		SystemSeparate: true,
		AuthHeader:     "x-api-key",
		ExtraHeaders:   map[string]string{"anthropic-version": anthropicVersion},
		ResponsePath:   "content[0].text",
	}
	OpenAIFormat = ProviderFormat{
		Name:         "openai",
		AuthHeader:   "Authorization",
		AuthPrefix:   "Bearer ",
		ResponsePath: "choices[0].message.content",
	}
)

// FormatFor resolves a provider name to its format.
func FormatFor(name string) (ProviderFormat, error) {
	switch strings.ToLower(name) {
	case "anthropic", "claude", "":
		return AnthropicFormat, nil
	case "openai":
		return OpenAIFormat, nil
	default:
		return ProviderFormat{}, fmt.Errorf("unknown generator provider %q", name)
	}
}

// HTTPBackend calls a chat-style generation API over HTTP.
type HTTPBackend struct {
	Format      ProviderFormat
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature float64
	Keys        KeySource
	HTTPClient  *http.Client
}

// NewHTTPBackend creates a backend with its own HTTP client bounded by timeout.
func NewHTTPBackend(format ProviderFormat, endpoint, model string, maxTokens int, temperature float64, timeout time.Duration, keys KeySource) *HTTPBackend {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPBackend{
		Format:      format,
		Endpoint:    endpoint,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Keys:        keys,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	apiKey := ""
	if b.Keys != nil {
		apiKey = b.Keys.APIKey()
	}
	if apiKey == "" {
		return "", errors.New("missing generator API key")
	}

	body, err := json.Marshal(b.buildRequestBody(system, prompt))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(b.Format.AuthHeader, b.Format.AuthPrefix+apiKey)
	for k, v := range b.Format.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return "", &custom_errors.NetworkError{Op: b.Format.Name + " completion", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &custom_errors.NetworkError{Op: "read completion", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &custom_errors.APIError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBodySize)}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("unmarshal JSON: %w", err)
	}
	text, err := extractJSONPath(decoded, b.Format.ResponsePath)
	if err != nil {
		return "", fmt.Errorf("extract from path '%s': %w", b.Format.ResponsePath, err)
	}
	return strings.TrimSpace(text), nil
}

func (b *HTTPBackend) buildRequestBody(system, prompt string) map[string]any {
	request := map[string]any{
		"model":       b.Model,
		"temperature": b.Temperature,
	}
	if b.MaxTokens > 0 {
		request["max_tokens"] = b.MaxTokens
	}

	user := map[string]string{"role": "user", "content": prompt}
	if b.Format.SystemSeparate {
		if system != "" {
			request["system"] = system
		}
		request["messages"] = []map[string]string{user}
	} else {
		request["messages"] = []map[string]string{
			{"role": "system", "content": system},
			user,
		}
	}
	return request
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
