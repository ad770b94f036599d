package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	api "github.com/mind-engage/judged/internal/api/http"
	auth "github.com/mind-engage/judged/internal/auth/middleware"
	"github.com/mind-engage/judged/internal/judging"
	"github.com/mind-engage/judged/internal/metrics"
	"github.com/mind-engage/judged/internal/sweep"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the lease sweeper and the stats queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, log, h, err := setup(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
	}
	svc := judging.New(h, judgingConfig(cfg), judging.WithLogger(log), judging.WithObserver(m))
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Config:  cfg,
			DB:      h,
			Service: svc,
			Auth:    authSvc,
			Users:   auth.NewUserStore(h, cfg.AdminUser, cfg.AdminPassHash),
			Metrics: m,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sweep.New(svc.Locks, cfg.SweepInterval, log, m).Run(gctx)
	})
	g.Go(func() error {
		return svc.Recompute.Run(gctx)
	})

	err = g.Wait()

	// Scores accepted before shutdown still get their rollups.
	if n := svc.Recompute.Len(); n > 0 {
		log.Info("draining stats queue", "judges", n)
		_ = svc.Recompute.Flush(context.Background())
	}
	log.Info("stopped")
	return err
}
