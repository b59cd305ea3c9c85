// Package cli provides the command-line interface for shelfsync.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/avelling/shelfsync/internal/client"
	"github.com/avelling/shelfsync/internal/config"
	"github.com/avelling/shelfsync/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and shared services
	cfg         config.Config
	apiClient   *client.Client
	storeClient *store.Client
	logger      *slog.Logger
	logCleanup  func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shelfsync",
	Short: "Personal book-tracking companion",
	Long: `Shelfsync is the command-line companion for a personal book-tracking
service: manage your local library, import books from CSV exports, search
the catalogue, and explore the cultural diversity of your shelf.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		apiClient = client.New(cfg.ServerURL, logger)

		// Commands that never touch the local store skip the connection.
		if cmd.Name() == "jobs" || cmd.Name() == "search" {
			return nil
		}

		ctx := context.Background()
		storeClient, err = store.NewClient(ctx, store.Config{
			URL:       cfg.StoreURL,
			Namespace: cfg.StoreNamespace,
			Database:  cfg.StoreDatabase,
			Username:  cfg.StoreUser,
			Password:  cfg.StorePass,
			AuthLevel: cfg.StoreAuthLevel,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to library store: %w", err)
		}

		if err := storeClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if storeClient != nil {
			if err := storeClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close library store: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
}
