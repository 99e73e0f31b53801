// Package listener accepts client connections and reports each new peer
// address to the scan subsystem before handing the connection on.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"hostscan/logging"
)

// Listener is a TCP accept loop. OnConnect must not block; it is called on
// the accept goroutine for every accepted connection. Handler, if set,
// owns the connection; otherwise it is closed.
type Listener struct {
	Addr      string
	OnConnect func(addr netip.Addr)
	Handler   func(conn net.Conn)
	Logger    *slog.Logger

	mu     sync.Mutex
	ln     net.Listener
	logger *slog.Logger
	conns  sync.WaitGroup
	done   chan struct{}
}

// Start binds Addr and accepts connections in the background.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.Addr, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.logger = logging.For(l.Logger, "listener")
	l.done = make(chan struct{})
	l.mu.Unlock()

	l.logger.Info("accepting client connections", "addr", ln.Addr().String())
	go l.accept(ln)
	return nil
}

// BoundAddr returns the address the listener is bound to, or nil before Start.
func (l *Listener) BoundAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) accept(ln net.Listener) {
	defer close(l.done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("accept failed", "error", err)
			continue
		}

		if ap, err := netip.ParseAddrPort(conn.RemoteAddr().String()); err == nil && l.OnConnect != nil {
			l.OnConnect(ap.Addr().Unmap())
		}

		if l.Handler == nil {
			_ = conn.Close()
			continue
		}
		l.conns.Add(1)
		go func() {
			defer l.conns.Done()
			l.Handler(conn)
		}()
	}
}

// Stop closes the listener and waits for running handlers until ctx is done.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	ln, done := l.ln, l.done
	l.mu.Unlock()
	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	<-done

	finished := make(chan struct{})
	go func() {
		l.conns.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
