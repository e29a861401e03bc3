// Package cli provides the importctl command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rpattn/bulkimport/internal/app"
	"github.com/rpattn/bulkimport/internal/config"
	"github.com/rpattn/bulkimport/internal/logging"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

// Opener builds the application for a command run.
type Opener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error)

func defaultOpener(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
	return app.Open(ctx, cfg, logger, nil)
}

// state is shared by the subcommands of one root command.
type state struct {
	opener     Opener
	configPath string
	verbose    bool

	app     *app.App
	cleanup func() error
}

// NewRootCmd builds the importctl command tree.
func NewRootCmd(opener Opener) *cobra.Command {
	if opener == nil {
		opener = defaultOpener
	}
	s := &state{opener: opener}

	root := &cobra.Command{
		Use:   "importctl",
		Short: "Operate the bulk import pipeline",
		Long: `importctl runs imports, lists importers and recovers stalled jobs
against the same store the import server uses.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return s.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.close(cmd.ErrOrStderr())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&s.configPath, "config", "c", "", "config file or directory holding config.yaml")
	root.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newImportersCmd(s),
		newImportCmd(s),
		newCleanupStalledCmd(s),
		newWorkerCmd(s),
	)
	return root
}

// Execute runs importctl with the default store wiring.
func Execute() error {
	return NewRootCmd(nil).Execute()
}

func (s *state) open(cmd *cobra.Command) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}

	logger := logging.Discard()
	s.cleanup = func() error { return nil }
	if s.verbose {
		logger, s.cleanup = logging.Setup(cfg.Log.File, cfg.Log.SlogLevel())
	}

	s.app, err = s.opener(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	return nil
}

func (s *state) close(stderr io.Writer) {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
	if s.cleanup != nil {
		if err := s.cleanup(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to close log file: %v\n", err)
		}
		s.cleanup = nil
	}
}
