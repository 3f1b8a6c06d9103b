package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/config"
	"github.com/jasperwreed/agent-index/internal/debuglog"
	"github.com/jasperwreed/agent-index/internal/logging"
	"github.com/jasperwreed/agent-index/internal/report"
	"github.com/jasperwreed/agent-index/internal/storage"
)

var (
	configPath string
	dbPath     string
	claudeDir  string
	logLevel   string
	jsonOutput bool

	cfg *config.Config
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agent-index",
		Short: "Local index of coding-agent transcripts",
		Long: `Agent Index - Incrementally index coding-agent session transcripts into SQLite
and answer usage, search, tool, pricing and branch questions without re-reading the logs.`,
		Version:           "0.1.0",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/agent-index/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to index database (default: ~/.config/agent-index/index.db)")
	rootCmd.PersistentFlags().StringVar(&claudeDir, "claude-dir", "", "Agent data directory holding projects/ and debug/ (default: ~/.claude)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Write results as JSON")

	rootCmd.AddCommand(
		NewSyncCommand(),
		NewStatsCommand(),
		NewSearchCommand(),
		NewToolsCommand(),
		NewPricingCommand(),
		NewBranchesCommand(),
		NewErrorsCommand(),
		NewSessionsCommand(),
		NewSessionCommand(),
		NewTodosCommand(),
		NewBrowseCommand(),
		NewConfigCommand(),
	)

	return rootCmd
}

// loadConfig resolves the config file, then lets global flags win over it.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	v := NewValidator()
	if dbPath != "" {
		if loaded.Paths.Database, err = v.ResolvePath(dbPath); err != nil {
			return err
		}
	}
	if claudeDir != "" {
		if loaded.Paths.ClaudeDir, err = v.ResolvePath(claudeDir); err != nil {
			return err
		}
		if err := v.ValidateDirectory(loaded.Paths.ClaudeDir); err != nil {
			return fmt.Errorf("--claude-dir: %w", err)
		}
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	if err := logging.Configure(logging.Options{Level: loaded.Log.Level, Format: loaded.Log.Format}); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func openStore() (*storage.SQLiteStore, error) {
	store, err := storage.Open(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func newReporter(store *storage.SQLiteStore) (*report.Reporter, error) {
	debug, err := debuglog.NewScanner(cfg.Paths.ClaudeDir, cfg.Errors.Patterns, cfg.Errors.MaxResults)
	if err != nil {
		return nil, err
	}
	return report.New(store, cfg.Pricing, debug), nil
}

// withReporter opens the index for a read-only query command.
func withReporter(fn func(r *report.Reporter) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := newReporter(store)
	if err != nil {
		return err
	}
	return fn(r)
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
