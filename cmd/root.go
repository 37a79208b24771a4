// Package cmd provides CLI commands for dspacekit.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

var configFile string

func setupLogger() {
	logLevel := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "INFO"
	}

	var level slog.Level
	switch logLevel {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)

	slog.SetDefault(logger)
}

var rootCmd = &cobra.Command{
	Use:   "dspacekit",
	Short: "Harvest, mint DOIs for and serve repository content",
	Long: `dspacekit keeps a small institutional repository: collections and items
in a SQLite database, filled by harvesting OAI-PMH providers, with DOI
registration through CrossRef or DataCite, and served back out over a REST
API and an OAI-PMH endpoint.

Configuration is read from dspacekit.yaml in the working directory or
$HOME/.dspacekit, or from --config. Every key can be overridden with a
DSPACEKIT_ environment variable, e.g. DSPACEKIT_DATABASE_PATH.

Examples:
  dspacekit collection create --name "Theses" --handle 123456789/2
  dspacekit collection setup <uuid> --source https://demo.dspace.org/oai/request --set col_1 --metadata dc
  dspacekit harvest run <uuid>
  dspacekit doi list
  dspacekit serve`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	setupLogger()
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./dspacekit.yaml or $HOME/.dspacekit/dspacekit.yaml)")
	rootCmd.AddCommand(harvestCmd)
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(oaiCmd)
	rootCmd.AddCommand(doiCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

// openStore loads the configuration and opens its database. The caller
// closes the store.
func openStore(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database %s: %w", cfg.Database.Path, err)
	}
	return cfg, s, nil
}

// collectionArg resolves a collection given by UUID or handle.
func collectionArg(ctx context.Context, s *store.Store, arg string) (uuid.UUID, error) {
	if id, err := uuid.Parse(arg); err == nil {
		if _, err := s.GetCollection(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return uuid.Nil, fmt.Errorf("no collection with id %s", arg)
			}
			return uuid.Nil, err
		}
		return id, nil
	}
	target, err := s.ResolveHandle(ctx, arg)
	if errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%q is neither a collection id nor a known handle", arg)
	}
	if err != nil {
		return uuid.Nil, err
	}
	if target.Type != store.ResourceCollection {
		return uuid.Nil, fmt.Errorf("handle %s identifies a %s, not a collection", arg, target.Type)
	}
	return target.ID, nil
}
