package probes

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"hostscan/logging"
)

// TokenSize is the length of the token written by the endpoint server.
const TokenSize = 32

// EndpointServer is the listener suspected proxies are asked to reach. It
// writes a per-process random token to every connection so a probe can tell
// a real tunnel from a host that merely answers.
type EndpointServer struct {
	addr   netip.AddrPort
	token  []byte
	logger *slog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewEndpointServer prepares a server for addr with a fresh token.
func NewEndpointServer(addr netip.AddrPort, logger *slog.Logger) (*EndpointServer, error) {
	raw := make([]byte, TokenSize/2)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate endpoint token: %w", err)
	}
	return &EndpointServer{
		addr:   addr,
		token:  []byte(hex.EncodeToString(raw)),
		logger: logging.For(logger, "endpoint"),
	}, nil
}

// Token returns the token written to each connection.
func (s *EndpointServer) Token() []byte { return s.token }

// Addr returns the bound address once started, the configured one before.
func (s *EndpointServer) Addr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		if ap, err := netip.ParseAddrPort(s.ln.Addr().String()); err == nil {
			return ap
		}
	}
	return s.addr
}

// Start binds the listener and serves connections in the background.
func (s *EndpointServer) Start() error {
	ln, err := net.Listen("tcp", s.addr.String())
	if err != nil {
		return fmt.Errorf("listen on scan endpoint %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("scan endpoint listening", "addr", ln.Addr().String())
	s.wg.Add(1)
	go s.serve(ln)
	return nil
}

func (s *EndpointServer) serve(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("endpoint accept failed", "error", err)
			continue
		}
		go func(c net.Conn) {
			defer c.Close()
			_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if _, err := c.Write(s.token); err != nil {
				s.logger.Debug("endpoint write failed", "remote", c.RemoteAddr().String(), "error", err)
			}
		}(conn)
	}
}

// Close stops the listener and waits for the accept loop to exit.
func (s *EndpointServer) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	return err
}
