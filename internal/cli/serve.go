package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/applytrail/internal/server"
)

var (
	serveAddr          string
	cachePruneInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control API",
	Long: `Serve exposes runs, records, settings and metrics over HTTP under /api/v1.
Run progress streams as server-sent events from /api/v1/runs/<id>/events.

Example:
  applytrail serve
  applytrail serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	serveCmd.Flags().DurationVar(&cachePruneInterval, "cache-prune-interval", time.Hour, "how often to drop expired message cache entries")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if cfg.Log.Format == "console" && !verbose {
		cfg.Log.Format = "json"
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(server.Deps{
		Orchestrator: a.orch,
		Records:      a.stores.Records,
		Settings:     a.stores.Settings,
		Logger:       a.logger,
	}, server.Config{Addr: cfg.Server.Addr})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if cachePruneInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cachePruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					removed, err := a.cache.Prune()
					if err != nil {
						a.logger.Warn("cache prune failed", zap.Error(err))
						continue
					}
					if removed > 0 {
						a.logger.Debug("pruned message cache", zap.Int("removed", removed))
					}
				}
			}
		})
	}

	err = g.Wait()

	// give an active run the chance to reconcile before the stores close
	if run := a.orch.ActiveRun(); run != nil {
		run.Cancel()
		select {
		case <-run.Done():
		case <-time.After(30 * time.Second):
			a.logger.Warn("active run did not finish before shutdown", zap.String("run_id", run.ID))
		}
	}
	return err
}
