package probes

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
)

// bufferedConn keeps bytes the proxy sent after its CONNECT response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) { return c.r.Read(b) }

func (p *Prober) httpTunnel(ctx context.Context, proxyAddr string) (io.ReadCloser, error) {
	conn, err := p.dial(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, err
	}
	target := p.cfg.Endpoint.String()
	if _, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.0\r\nHost: %s\r\n\r\n", target, target); err != nil {
		conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodConnect})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("CONNECT refused: %s", resp.Status)
	}
	return &bufferedConn{Conn: conn, r: br}, nil
}
