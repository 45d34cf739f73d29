package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/surveypulse/internal/config"
)

// version is set via -ldflags at build time.
var version = "(devel)"

const defaultServerURL = "http://localhost:8080"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "surveypulse",
		Short:         "Live survey sessions with real-time results",
		Long:          "surveypulse records survey answers per session and serves live aggregated results over HTTP and websockets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if envFile == "" {
				return config.LoadDotEnv()
			}
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().String("env-file", "", "Path to a .env file (default: ./.env when present)")
	root.PersistentFlags().String("server", "", "Server base URL for client commands (overrides SURVEYPULSE_SERVER)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSessionCmd())
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newResultsCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "surveypulse", version)
		},
	})
	return root
}

// resolveServerURL returns the --server flag, then SURVEYPULSE_SERVER, then
// the local default.
func resolveServerURL(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("server"); strings.TrimSpace(u) != "" {
		return strings.TrimRight(strings.TrimSpace(u), "/")
	}
	if u := strings.TrimSpace(os.Getenv("SURVEYPULSE_SERVER")); u != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultServerURL
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
