// Command telemqd runs the TeleMQ broker: it wires configuration,
// logging, the authenticator, the session store, the router, and every
// configured transport listener, then blocks until one of them fails or
// the process is signaled to stop.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/telemq/telemq/internal/auth"
	"github.com/telemq/telemq/internal/broker"
	"github.com/telemq/telemq/internal/config"
	"github.com/telemq/telemq/internal/metrics"
	"github.com/telemq/telemq/internal/network"
	"github.com/telemq/telemq/internal/sessionstore"
	"github.com/telemq/telemq/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("telemqd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.ParseFlags(args)
	if err != nil {
		return err
	}

	log := buildLogger(cfg.LogLevel).Logger()

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			log.Warn("sentry init failed, continuing without crash reporting", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			defer sentry.Recover()
		}
	}

	store, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	if err := store.Load(); err != nil {
		log.Warn("session store load failed, starting empty", "error", err)
	}

	authn, err := buildAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}

	router := broker.NewRouter(store, log)

	reg := prometheus.NewRegistry()
	server := network.NewServer(router, authn, store, log)
	if cfg.Metrics.Enabled {
		m := metrics.New(reg)
		router.SetMetrics(m)
		server.SetMetrics(m)
	}
	if err := startListeners(server, cfg.Listeners); err != nil {
		return err
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		router.Run()
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, reg, log)
		})
		g.Go(func() error {
			server.RunMetricsCollector(gctx, 5*time.Second)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		done := make(chan struct{})
		router.Commands() <- broker.ShutDown{Done: done}
		<-done
		return nil
	})

	return g.Wait()
}

func buildLogger(level string) *logger.SlogLogger {
	var minLevel slog.Level
	switch level {
	case "debug":
		minLevel = slog.LevelDebug
	case "warn":
		minLevel = slog.LevelWarn
	case "error":
		minLevel = slog.LevelError
	default:
		minLevel = slog.LevelInfo
	}
	return logger.NewSlogLogger(minLevel, os.Stdout)
}

func buildStore(cfg config.StoreConfig) (sessionstore.Store, error) {
	switch cfg.Backend {
	case "pebble":
		return sessionstore.NewPebbleStore(cfg.Path)
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		return sessionstore.NewRedisStore(client, cfg.RedisKey), nil
	default:
		return sessionstore.NewFileStore(cfg.Path), nil
	}
}

func buildAuthenticator(cfg config.AuthConfig) (auth.Authenticator, error) {
	switch cfg.Source {
	case "http":
		return auth.NewHTTPAuthenticator(cfg.HTTPEndpoint, cfg.BrokerID, cfg.ClusterID, cfg.AccountID), nil
	default:
		return auth.LoadFileAuthenticator(cfg.FilePath)
	}
}

func startListeners(server *network.Server, cfg config.ListenersConfig) error {
	if cfg.TCP != "" {
		if err := server.AddTCP(cfg.TCP); err != nil {
			return err
		}
	}
	if cfg.TLS != "" {
		tlsConfig := network.DefaultTLSConfig()
		tlsConfig.CertFile = cfg.TLSFiles.CertFile
		tlsConfig.KeyFile = cfg.TLSFiles.KeyFile
		tlsConfig.CAFile = cfg.TLSFiles.CAFile
		built, err := tlsConfig.Build()
		if err != nil {
			return err
		}
		if err := server.AddTLS(cfg.TLS, built); err != nil {
			return err
		}
	}
	if cfg.WebSocket != "" {
		if err := server.AddWebSocket(cfg.WebSocket, cfg.WSPath, nil); err != nil {
			return err
		}
	}
	if cfg.WSS != "" {
		tlsConfig := network.DefaultTLSConfig()
		tlsConfig.CertFile = cfg.TLSFiles.CertFile
		tlsConfig.KeyFile = cfg.TLSFiles.KeyFile
		built, err := tlsConfig.Build()
		if err != nil {
			return err
		}
		if err := server.AddWebSocket(cfg.WSS, cfg.WSPath, built); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		log.Error("metrics server stopped", "error", err)
		return err
	}
}
