// cmd/voicecommit/control.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voice-commit/internal/config"
	"voice-commit/internal/model"
)

const controlTimeout = 30 * time.Second

func loginCmd() *cobra.Command {
	var token string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Validate a GitHub token, store it, and share it with the paired device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"token": token}
			if expiresIn > 0 {
				body["expires_at"] = time.Now().Add(expiresIn).UTC()
			}
			var reply struct {
				Login string `json:"login"`
				Kind  string `json:"token_type"`
			}
			if err := callControl(cmd.Context(), http.MethodPost, "/v1/auth/token", body, &reply); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s token)\n", reply.Login, reply.Kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "GitHub personal access token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Token lifetime (0 = no expiry)")
	cmd.MarkFlagRequired("token")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token here and on the paired device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := callControl(cmd.Context(), http.MethodDelete, "/v1/auth/token", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func apiKeyCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Store the code generator API key and share it with the paired device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := callControl(cmd.Context(), http.MethodPut, "/v1/auth/apikey", map[string]string{"key": key}, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key updated")
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key (empty removes it)")
	return cmd
}

// callControl sends a request to the locally running primary or satellite.
func callControl(ctx context.Context, method, path string, body, out any) error {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	url := strings.TrimRight(cfg.ControlURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.PairingSecret != "" {
		req.SetBasicAuth(model.PairingUser, cfg.PairingSecret)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("is voicecommit running at %s? %w", cfg.ControlURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
