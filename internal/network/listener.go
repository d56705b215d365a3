package network

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

type ListenerConfig struct {
	Address      string
	TLSConfig    *tls.Config
	TCPKeepAlive time.Duration
}

func DefaultListenerConfig(address string) *ListenerConfig {
	return &ListenerConfig{
		Address:      address,
		TCPKeepAlive: 60 * time.Second,
	}
}

// Listener accepts TCP or TLS connections and hands each to a
// ConnectionHandler, same shape for both transports — the handler decides
// what to do with the byte stream, this type only owns the accept loop.
type Listener struct {
	config   *ListenerConfig
	listener net.Listener
	registry *Registry

	connSeq  atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64

	handler ConnectionHandler

	wg sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
}

// ConnectionHandler drives one accepted connection to completion. It is
// expected to block until the connection is done (e.g. it constructs and
// runs a session.Session). A non-nil error is not logged here; it counts
// the connection as rejected in Stats.
type ConnectionHandler func(*Connection) error

func NewListener(config *ListenerConfig, registry *Registry, handler ConnectionHandler) (*Listener, error) {
	if config == nil || config.Address == "" {
		return nil, ErrInvalidAddress
	}
	if handler == nil {
		return nil, errors.New("network: listener requires a ConnectionHandler")
	}
	if registry == nil {
		registry = NewRegistry()
	}

	return &Listener{
		config:   config,
		registry: registry,
		handler:  handler,
	}, nil
}

func (l *Listener) Start() error {
	if l.closed.Load() {
		return ErrListenerClosed
	}

	var err error
	if l.config.TLSConfig != nil {
		l.listener, err = tls.Listen("tcp", l.config.Address, l.config.TLSConfig)
	} else {
		l.listener, err = net.Listen("tcp", l.config.Address)
	}
	if err != nil {
		return errors.Wrapf(err, "listen on %s", l.config.Address)
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		netConn, err := l.listener.Accept()
		if err != nil {
			if l.closed.Load() {
				return
			}
			continue
		}

		if tcpConn, ok := netConn.(*net.TCPConn); ok && l.config.TCPKeepAlive > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(l.config.TCPKeepAlive)
		}

		l.wg.Add(1)
		go l.handleConnection(netConn)
	}
}

func (l *Listener) handleConnection(netConn net.Conn) {
	defer l.wg.Done()

	connID := l.generateConnectionID()
	conn := NewConnection(netConn, connID, &ConnectionConfig{TCPKeepAlive: l.config.TCPKeepAlive})

	l.registry.Add(conn)
	defer l.registry.Remove(connID)

	l.accepted.Add(1)

	if err := l.handler(conn); err != nil {
		l.rejected.Add(1)
	}
}

func (l *Listener) generateConnectionID() string {
	seq := l.connSeq.Add(1)
	return fmt.Sprintf("conn-%d-%d", time.Now().UnixNano(), seq)
}

func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	l.closeOnce.Do(func() {
		if l.listener != nil {
			err = l.listener.Close()
		}
		l.wg.Wait()
	})

	return err
}

func (l *Listener) Addr() net.Addr {
	if l.listener != nil {
		return l.listener.Addr()
	}
	return nil
}

func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Accepted: l.accepted.Load(),
		Rejected: l.rejected.Load(),
		Active:   uint64(l.registry.Count()),
	}
}

type ListenerStats struct {
	Accepted uint64
	Rejected uint64
	Active   uint64
}
