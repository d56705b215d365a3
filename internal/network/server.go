package network

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/telemq/telemq/internal/auth"
	"github.com/telemq/telemq/internal/broker"
	"github.com/telemq/telemq/internal/metrics"
	"github.com/telemq/telemq/internal/session"
	"github.com/telemq/telemq/internal/sessionstore"
)

// Server owns every transport listener for one broker process and the
// ConnectionHandler shared across them: construct a Session per accepted
// connection and drive it to completion. It is cmd/telemqd's one call
// site into this package.
type Server struct {
	Router *broker.Router
	Authn  auth.Authenticator
	Store  sessionstore.Store
	Log    *slog.Logger

	registry    *Registry
	listeners   []*Listener
	wsListeners []*WSListener

	metrics       *metrics.Metrics
	lastBytesRead uint64
	lastBytesSent uint64
}

func NewServer(router *broker.Router, authn auth.Authenticator, store sessionstore.Store, log *slog.Logger) *Server {
	return &Server{
		Router:   router,
		Authn:    authn,
		Store:    store,
		Log:      log,
		registry: NewRegistry(),
	}
}

func (s *Server) handle(conn *Connection) error {
	sess := session.New(conn, s.Router.Commands(), s.Authn, s.Store, s.Log)
	return sess.Run()
}

// AddTCP starts a plain TCP listener on addr.
func (s *Server) AddTCP(addr string) error {
	ln, err := NewListener(DefaultListenerConfig(addr), s.registry, s.handle)
	if err != nil {
		return err
	}
	if err := ln.Start(); err != nil {
		return err
	}
	s.listeners = append(s.listeners, ln)
	return nil
}

// AddTLS starts a TLS listener on addr using tlsConfig.
func (s *Server) AddTLS(addr string, tlsConfig *tls.Config) error {
	cfg := DefaultListenerConfig(addr)
	cfg.TLSConfig = tlsConfig
	ln, err := NewListener(cfg, s.registry, s.handle)
	if err != nil {
		return err
	}
	if err := ln.Start(); err != nil {
		return err
	}
	s.listeners = append(s.listeners, ln)
	return nil
}

// AddWebSocket starts a WebSocket (or, with a non-nil tlsConfig, secure
// WebSocket) listener on addr at path.
func (s *Server) AddWebSocket(addr, path string, tlsConfig *tls.Config) error {
	wl := NewWSListener(addr, path, tlsConfig, s.registry, s.handle)
	if err := wl.Start(); err != nil {
		return err
	}
	s.wsListeners = append(s.wsListeners, wl)
	return nil
}

// Close shuts down every listener this server started. It does not touch
// already-accepted connections; the router's own ShutDown command drives
// those to a graceful close.
func (s *Server) Close() error {
	var firstErr error
	for _, ln := range s.listeners {
		if err := ln.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, wl := range s.wsListeners {
		if err := wl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ConnectionCount reports the number of live connections across every
// listener this server owns, for internal/metrics' connection gauge.
func (s *Server) ConnectionCount() int {
	return s.registry.Count()
}

// SetMetrics wires a counter set that RunMetricsCollector samples into.
// Nil (the default) disables collection.
func (s *Server) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// RunMetricsCollector periodically samples ConnectionsOpen and the
// aggregate byte counters across every tracked connection until ctx is
// canceled. Byte counters are polled rather than incremented inline from
// Connection.Read/Write so the hot path never touches a Prometheus
// counter directly.
func (s *Server) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	if s.metrics == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleMetrics()
		}
	}
}

func (s *Server) sampleMetrics() {
	s.metrics.ConnectionsOpen.Set(float64(s.registry.Count()))

	totalRead, totalSent := s.registry.TotalBytes()
	if totalRead > s.lastBytesRead {
		s.metrics.BytesReceived.Add(float64(totalRead - s.lastBytesRead))
	}
	s.lastBytesRead = totalRead

	if totalSent > s.lastBytesSent {
		s.metrics.BytesSent.Add(float64(totalSent - s.lastBytesSent))
	}
	s.lastBytesSent = totalSent
}
