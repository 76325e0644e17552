package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragchat/internal/config"
	"ragchat/internal/extract"
	"ragchat/internal/service"
	"ragchat/internal/tui"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "ragchat [file or glob ...]",
	Short: "Chat with your documents, one knowledge base per session",
	Long: `ragchat keeps chat sessions, each with its own knowledge base built from
the documents you upload into it. Files given on the command line are
uploaded into the first session before the interface starts.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd.Context(), func(ctx context.Context, mgr *service.Manager, logger *slog.Logger) error {
			if len(args) > 0 {
				files, skipped := extract.ReadPaths(args)
				for _, s := range skipped {
					logger.Warn("skipping path", "path", s.Name, "reason", s.Reason)
				}
				res, err := mgr.IngestDocuments(ctx, files)
				if err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
				logger.Info("initial upload", "documents", len(res.Documents), "skipped", len(res.Skipped))
			}
			_, err := tea.NewProgram(tui.New(ctx, mgr), tea.WithAltScreen()).Run()
			return err
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withManager(cmd.Context(), func(_ context.Context, mgr *service.Manager, _ *slog.Logger) error {
			active := mgr.View().SessionID
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
			for _, s := range mgr.Sessions() {
				// the fresh session opened for this command is not stored
				if s.ID == active {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), s.Title)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/ragchat/config.yaml)")
	rootCmd.AddCommand(sessionsCmd)
}

// withManager loads config, logging and components, runs fn and shuts the
// manager down afterwards.
func withManager(ctx context.Context, fn func(context.Context, *service.Manager, *slog.Logger) error) error {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := config.SetupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}

	mgr, err := buildManager(ctx, cfg, backend, logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, mgr, logger)
	if err := mgr.Close(context.Background()); err != nil {
		logger.Error("shutdown failed", "error", err)
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
