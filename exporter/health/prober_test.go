package health

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) Target {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Target{Name: "open", Host: host, Port: port}
}

// closedTarget returns an address nothing listens on
func closedTarget(t *testing.T) Target {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()
	return Target{Name: "closed", Host: "127.0.0.1", Port: addr.Port}
}

func TestProbe(t *testing.T) {
	prober := NewProber(Config{Timeout: time.Second}, nil, zerolog.Nop())

	open := prober.Probe(context.Background(), listen(t))
	assert.True(t, open.Reachable)
	assert.NoError(t, open.Err)

	closed := prober.Probe(context.Background(), closedTarget(t))
	assert.False(t, closed.Reachable)
	assert.Error(t, closed.Err)
}

type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProbe_Timeout(t *testing.T) {
	prober := NewProber(Config{Timeout: 50 * time.Millisecond}, blockingDialer{}, zerolog.Nop())

	start := time.Now()
	result := prober.Probe(context.Background(), Target{Name: "grpc", Host: "10.255.255.1", Port: 16110})

	assert.False(t, result.Reachable)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

type countingDialer struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		peak := d.peak.Load()
		if n <= peak || d.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)
	return nil, errors.New("connection refused")
}

func TestProbeAll_Concurrent(t *testing.T) {
	dialer := &countingDialer{}
	prober := NewProber(Config{Timeout: time.Second}, dialer, zerolog.Nop())

	targets := []Target{
		{Name: "grpc", Host: "kaspad", Port: 16110},
		{Name: "json_rpc", Host: "kaspad", Port: 18110},
	}
	results := prober.ProbeAll(context.Background(), targets...)

	require.Len(t, results, 2)
	assert.Equal(t, "grpc", results[0].Target.Name)
	assert.Equal(t, "json_rpc", results[1].Target.Name)
	assert.False(t, results[0].Reachable)
	assert.False(t, results[1].Reachable)
	assert.Equal(t, int32(2), dialer.peak.Load(), "probes should run concurrently")
}

func TestCurrentState(t *testing.T) {
	prober := NewProber(Config{Timeout: time.Second}, nil, zerolog.Nop())
	open := listen(t)

	assert.Equal(t, StateUnknown, prober.CurrentState(open.Name))

	prober.Probe(context.Background(), open)
	assert.Equal(t, StateReachable, prober.CurrentState(open.Name))

	down := closedTarget(t)
	down.Name = open.Name
	prober.Probe(context.Background(), down)
	assert.Equal(t, StateUnreachable, prober.CurrentState(open.Name))
}
