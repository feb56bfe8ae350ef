package fetcher

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/aluiziolira/go-msu-finder/models"
)

// NewPinnedTransport returns a single-use transport for target. When target
// carries an address, every dial goes there while TLS SNI and the Host header
// keep using the virtual host.
func NewPinnedTransport(target models.HostTarget, timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout}

	transport := &http.Transport{
		DialContext:           pinnedDialer(dialer, target.Address),
		TLSClientConfig:       &tls.Config{ServerName: target.VHost, MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		DisableKeepAlives:     true,
		MaxIdleConns:          1,
	}
	if target.Address == "" {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return transport
}

func pinnedDialer(dialer *net.Dialer, address string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if address != "" {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			addr = net.JoinHostPort(address, port)
		}
		return dialer.DialContext(ctx, network, addr)
	}
}
