// cmd/voicecommit/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voice-commit/internal/model"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "voicecommit",
		Short:   "Turn spoken requests into code committed to GitHub",
		Version: version,
	}

	rootCmd.AddCommand(serveCmd(model.RolePrimary, "Hold credentials and share them with the satellite"))
	rootCmd.AddCommand(serveCmd(model.RoleSatellite, "Drive voice requests from transcript to commit"))
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(apiKeyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
