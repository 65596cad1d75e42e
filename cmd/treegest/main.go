// Command treegest renders documents, snapshots and live pages as
// token-bounded XML visual trees.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/treegest/internal/config"
	"github.com/dgallion1/treegest/internal/logging"
	"github.com/dgallion1/treegest/internal/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var (
	cfg     config.Config
	logger  *zap.Logger
	verbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "treegest",
		Short:         "Serialize element trees into token-bounded XML for LLM prompts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if verbose {
				level = "debug"
			}
			logger, err = logging.New(cfg.Env, level)
			if err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	root.AddCommand(newRenderCmd(), newCaptureCmd(), newMCPCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newService builds a render service from the loaded configuration.
func newService() (*render.Service, error) {
	return render.NewService(render.Options{
		TokenLimit:    cfg.DefaultTokenLimit,
		StartingID:    cfg.DefaultStartingID,
		Detail:        cfg.Detail(),
		Estimator:     cfg.Estimator(),
		CacheSize:     cfg.CacheSize,
		MaxConcurrent: cfg.MaxConcurrentRender,
		PDFFallback:   cfg.PDFFallbackPdftotext,
		Logger:        logger,
	})
}
