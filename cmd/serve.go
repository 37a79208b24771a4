package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/dspacekit/api"
	"github.com/lehigh-university-libraries/dspacekit/harvest"
	"github.com/lehigh-university-libraries/dspacekit/oai"
)

var (
	serveAddr    string
	serveHarvest bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API, the OAI-PMH provider and metrics",
	Long: `Serve over HTTP:

  /api/core/...         collections, items and harvest settings
  /api/identifiers/dois DOIs by status
  /oai/request          OAI-PMH 2.0 provider
  /metrics              Prometheus metrics

With --harvest the harvest scheduler runs in the same process.

Examples:
  dspacekit serve
  dspacekit serve --addr :9000 --harvest`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveHarvest, "harvest", false, "Also run the harvest scheduler")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := newHarvester(cfg, s)
	if err != nil {
		return err
	}
	server := api.New(s,
		api.WithHarvester(h),
		api.WithOAI(oai.NewHandler(s, cfg.OAI)),
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		server.Wait()
		return err
	})
	if serveHarvest {
		g.Go(func() error {
			return harvest.NewScheduler(h).Start(gctx)
		})
	}
	return g.Wait()
}
