package probes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/net/proxy"
)

const (
	socks4Version        = 4
	socks4CmdConnect     = 1
	socks4RequestGranted = 90
)

// socks4Tunnel speaks SOCKS4 by hand; x/net/proxy only provides SOCKS5.
func (p *Prober) socks4Tunnel(ctx context.Context, proxyAddr string) (io.ReadCloser, error) {
	target := p.cfg.Endpoint
	if !target.Addr().Unmap().Is4() {
		return nil, errors.New("socks4 requires an IPv4 endpoint")
	}

	conn, err := p.dial(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, err
	}
	ip := target.Addr().Unmap().As4()
	port := target.Port()
	req := []byte{socks4Version, socks4CmdConnect, byte(port >> 8), byte(port), ip[0], ip[1], ip[2], ip[3], 0}
	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read socks4 reply: %w", err)
	}
	if resp[0] != 0 || resp[1] != socks4RequestGranted {
		conn.Close()
		return nil, fmt.Errorf("socks4 request rejected with code %d", resp[1])
	}
	return conn, nil
}

// pacedDialer routes the SOCKS5 client's dials through the prober so they
// share the pacer and deadlines.
type pacedDialer struct {
	p *Prober
}

func (d pacedDialer) Dial(network, address string) (net.Conn, error) {
	return d.p.dial(context.Background(), network, address)
}

func (d pacedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.p.dial(ctx, network, address)
}

func (p *Prober) socks5Tunnel(ctx context.Context, proxyAddr string) (io.ReadCloser, error) {
	d, err := proxy.SOCKS5("tcp", proxyAddr, nil, pacedDialer{p: p})
	if err != nil {
		return nil, err
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support contexts")
	}
	return cd.DialContext(ctx, "tcp", p.cfg.Endpoint.String())
}
