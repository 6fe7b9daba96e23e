// Command congregatectl drives the service and event editors against a Congregate API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/congregate/backend/internal/client"
	"github.com/congregate/backend/internal/editor"
)

var (
	flagURL     string
	flagToken   string
	flagTenant  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "congregatectl",
	Short: "Manage services and service events from the terminal",
	Long: `congregatectl talks to a Congregate API server.

The server URL and token come from CONGREGATE_URL and CONGREGATE_TOKEN unless
--url and --token are given.`,
	Example: `  # Create a service with a role and a note
  congregatectl services create --tenant $T --name "Sunday" --start 09:00 --role "Usher" --note "Doors at 8"

  # Copy an event to next week
  congregatectl events copy $EVENT --date 2026-11-15

  # Follow refetch signals
  congregatectl watch --tenant $T`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", "", "API base URL (default $CONGREGATE_URL or http://localhost:8080)")
	pf.StringVar(&flagToken, "token", "", "bearer token (default $CONGREGATE_TOKEN)")
	pf.StringVar(&flagTenant, "tenant", "", "tenant id (default $CONGREGATE_TENANT)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log requests and failures")

	rootCmd.AddGroup(
		&cobra.Group{ID: "editor", Title: "Editor Commands:"},
		&cobra.Group{ID: "session", Title: "Session Commands:"},
	)
	servicesCmd.GroupID = "editor"
	eventsCmd.GroupID = "editor"
	watchCmd.GroupID = "session"
	loginCmd.GroupID = "session"

	rootCmd.AddCommand(servicesCmd, eventsCmd, watchCmd, loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}

// errorHint explains API failures that have a usual cause.
func errorHint(err error) string {
	switch {
	case client.IsUnauthorized(err):
		return "the token was rejected; run 'congregatectl login' and export CONGREGATE_TOKEN"
	case client.IsForbidden(err):
		return "your role in this tenant does not allow it, or the price tier limit is reached"
	case client.IsNotFound(err):
		return "no such record in a tenant you belong to"
	case client.IsConflict(err):
		return "the record already exists or was changed by someone else; list it and retry"
	}
	return ""
}

func baseURL() string {
	if flagURL != "" {
		return flagURL
	}
	if v := os.Getenv("CONGREGATE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func apiClient() (*client.Client, error) {
	token := flagToken
	if token == "" {
		token = os.Getenv("CONGREGATE_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no token; pass --token or set CONGREGATE_TOKEN (see 'congregatectl login')")
	}
	return client.New(baseURL(), token), nil
}

func tenantID() (uuid.UUID, error) {
	raw := flagTenant
	if raw == "" {
		raw = os.Getenv("CONGREGATE_TENANT")
	}
	if raw == "" {
		return uuid.Nil, fmt.Errorf("no tenant; pass --tenant or set CONGREGATE_TENANT")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q", raw)
	}
	return id, nil
}

// newLogger is silent unless --verbose; toasts already report failures.
func newLogger() *zap.Logger {
	if !flagVerbose {
		return zap.NewNop()
	}
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// terminalToaster prints toasts on stderr.
func terminalToaster(cmd *cobra.Command) editor.Toaster {
	return editor.ToasterFunc(func(t editor.Toast) {
		mark := "ok"
		if t.Variant == editor.VariantDestructive {
			mark = "error"
		}
		line := fmt.Sprintf("[%s] %s", mark, t.Title)
		if t.Description != "" {
			line += ": " + t.Description
		}
		fmt.Fprintln(cmd.ErrOrStderr(), line)
	})
}

// editorDeps wires the editor to the API client for one command run.
func editorDeps(cmd *cobra.Command) (editor.Deps, *client.Client, error) {
	c, err := apiClient()
	if err != nil {
		return editor.Deps{}, nil, err
	}
	return editor.Deps{
		Gateway: c,
		Toaster: terminalToaster(cmd),
		Logger:  newLogger(),
	}, c, nil
}

// splitPair splits "left|right" into left and an optional right.
func splitPair(s string) (string, *string) {
	left, right, ok := strings.Cut(s, "|")
	if !ok || strings.TrimSpace(right) == "" {
		return left, nil
	}
	return left, &right
}

func parseIDs(raw []string, what string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("invalid %s id %q", what, r)
		}
		out = append(out, id)
	}
	return out, nil
}
