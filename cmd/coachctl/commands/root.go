// Package commands implements the coachctl subcommands.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ashureev/goalcoach/internal/config"
	"github.com/ashureev/goalcoach/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	version string
	userID  string
	envFile string
	format  string
	verbose bool
}

// NewRootCmd builds the coachctl command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{version: version}

	cmd := &cobra.Command{
		Use:   "coachctl",
		Short: "Talk to the goal coach from the terminal",
		Long: `coachctl chats with the goal coach, inspects stored goals and serves
the coach tools to MCP clients.

It reads the same environment (and .env file) as the server, so it works
against the same database and model provider.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch opts.format {
			case formatTable, formatJSON:
			default:
				return fmt.Errorf("--format must be %q or %q", formatTable, formatJSON)
			}
			if opts.userID == "" {
				return errors.New("--user cannot be empty")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.userID, "user", "u", "cli", "User ID the command acts as")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load if present")
	cmd.PersistentFlags().StringVar(&opts.format, "format", formatTable, "Output format (table or json)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level to stderr")

	cmd.AddCommand(
		newChatCmd(opts),
		newGoalsCmd(opts),
		newMCPCmd(opts),
		newHealthCmd(),
	)
	return cmd
}

// logger writes to stderr so stdout stays clean for command output and MCP frames.
func (o *rootOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", o.envFile, err)
	}
	return config.Load()
}

// openStore opens the configured database without building a model client.
func (o *rootOptions) openStore() (*store.SQLiteStore, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return repo, nil
}
