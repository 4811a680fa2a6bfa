package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gitter-badger/zproc/config"
	"github.com/gitter-badger/zproc/observability"
	"github.com/gitter-badger/zproc/server"
	"github.com/gitter-badger/zproc/transport"
)

func newServeCmd() *cobra.Command {
	var replyAddr, pubAddr, metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ZProc state server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				loaded, err := config.LoadConfig(configFile)
				if err != nil {
					return err
				}
				cfg = *loaded
			}
			if replyAddr != "" {
				cfg.Server.ReplyAddr = replyAddr
			}
			if pubAddr != "" {
				cfg.Server.PubAddr = pubAddr
			}
			if metricsAddr != "" {
				cfg.Server.MetricsAddr = metricsAddr
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
			observer, err := observability.GetObserver(cfg.Observer)
			if err != nil {
				observer = observability.NewSlogObserver(logger)
			}

			return runServer(cmd.Context(), cfg, observer, logger)
		},
	}

	cmd.Flags().StringVar(&replyAddr, "reply-addr", "", "Unix socket path for the request/reply channel (overrides config)")
	cmd.Flags().StringVar(&pubAddr, "pub-addr", "", "Unix socket path for the change-event channel (overrides config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "host:port to serve Prometheus /metrics on (overrides config; empty disables it)")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config, observer observability.Observer, logger *slog.Logger) error {
	pubSrv, err := transport.NewPubServer(cfg.Server.PubAddr, observer)
	if err != nil {
		return err
	}
	defer pubSrv.Close()

	srv := server.New(server.WithPublisher(pubSrv), server.WithObserver(observer))

	replySrv, err := transport.NewReplyServer(cfg.Server.ReplyAddr, srv.Handler(), observer)
	if err != nil {
		return err
	}
	defer replySrv.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	logger.Info("zproc server starting",
		slog.String("server_id", srv.ID()),
		slog.String("reply_addr", cfg.Server.ReplyAddr),
		slog.String("pub_addr", cfg.Server.PubAddr),
	)
	fmt.Fprintf(os.Stderr, "zproc server %s listening: reply=%s pub=%s\n", srv.ID(), cfg.Server.ReplyAddr, cfg.Server.PubAddr)

	errCh := make(chan error, 3)
	go func() { errCh <- replySrv.Serve(ctx) }()
	go func() { errCh <- pubSrv.Serve(ctx) }()
	go srv.Run(ctx)

	if cfg.Server.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := srv.RegisterWith(reg); err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

		go func() {
			<-ctx.Done()
			metricsSrv.Close()
		}()
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		logger.Info("zproc metrics listening", slog.String("metrics_addr", cfg.Server.MetricsAddr))
	}

	select {
	case <-ctx.Done():
		logger.Info("zproc server shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
