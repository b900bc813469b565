package protocol

import (
	"context"
	"net"
	"strconv"
	"time"
)

// TCPDialer abstracts TCP connection dialing for testing
type TCPDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultTCPDialer uses the standard net package for TCP connections.
// A zero Timeout leaves the dial bounded only by ctx.
type DefaultTCPDialer struct {
	Timeout time.Duration
}

// DialContext connects to a TCP address
func (d *DefaultTCPDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, network, address)
}

// Address joins host and port into a dialable address
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
