package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evdnx/gobinary/bot"
	"github.com/evdnx/gobinary/broker"
	"github.com/evdnx/gobinary/broker/paper"
	"github.com/evdnx/gobinary/broker/wsapi"
	"github.com/evdnx/gobinary/clock"
	"github.com/evdnx/gobinary/config"
	"github.com/evdnx/gobinary/logger"
	"github.com/evdnx/gobinary/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real{}
	b := broker.NewRetrying(newBroker(cfg, clk, log), cfg.Broker.RetryAttempts, cfg.Broker.RetryBackoff, clk, log)
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("broker_close_failed", logger.Err(err))
		}
	}()

	if err := b.Connect(ctx); err != nil {
		log.Error("connect_failed", logger.String("broker", cfg.Broker.Kind), logger.Err(err))
		return err
	}
	log.Info("connected", logger.String("broker", cfg.Broker.Kind))

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	tb, err := bot.New(cfg, b, clk, log)
	if err != nil {
		return err
	}
	if err := tb.Start(ctx); err != nil {
		log.Error("start_failed", logger.Err(err))
		return err
	}
	err = tb.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown")
		return nil
	}
	return err
}

func newBroker(cfg config.Config, clk clock.Clock, log logger.Logger) broker.Broker {
	if cfg.Broker.Kind == config.BrokerWS {
		return wsapi.New(wsapi.Options{
			URL:               cfg.Broker.URL,
			AuthURL:           cfg.Broker.AuthURL,
			Email:             cfg.Broker.Email,
			Password:          cfg.Broker.Password,
			RequestsPerSecond: cfg.Broker.RequestsPerSecond,
			RequestTimeout:    cfg.Broker.RequestTimeout,
		}, log)
	}
	opts := paper.DefaultOptions()
	opts.Balance = cfg.Broker.PaperBalance
	opts.Payout = cfg.Broker.PaperPayout
	opts.Seed = cfg.Broker.PaperSeed
	return paper.New(opts, clk, log)
}

func serveMetrics(addr string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", logger.Err(err))
		}
	}()
	log.Info("metrics_listening", logger.String("addr", addr))
	return srv
}
