package health

import (
	"context"
	"sync"
	"time"

	"kaspa-exporter/protocol"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// State represents the reachability of a probed port
type State string

const (
	StateUnknown     State = "unknown"
	StateReachable   State = "reachable"
	StateUnreachable State = "unreachable"
)

// Target is a named TCP endpoint
type Target struct {
	Name string
	Host string
	Port int
}

// Address returns host:port
func (t Target) Address() string {
	return protocol.Address(t.Host, t.Port)
}

// Result is the outcome of probing one target
type Result struct {
	Target    Target
	Reachable bool
	Latency   time.Duration
	Err       error
}

// Config holds prober configuration
type Config struct {
	Timeout time.Duration
}

// Prober checks whether node ports accept TCP connections. It opens a
// connection and closes it immediately; nothing is sent.
type Prober struct {
	config Config
	dialer protocol.TCPDialer
	logger zerolog.Logger

	states  map[string]State
	stateMu sync.Mutex
}

// NewProber creates a prober. A nil dialer uses the standard net dialer.
func NewProber(cfg Config, dialer protocol.TCPDialer, logger zerolog.Logger) *Prober {
	if dialer == nil {
		dialer = &protocol.DefaultTCPDialer{Timeout: cfg.Timeout}
	}
	return &Prober{
		config: cfg,
		dialer: dialer,
		logger: protocol.Component(logger, "prober"),
		states: make(map[string]State),
	}
}

// CurrentState returns the last observed state of the named target
func (p *Prober) CurrentState(name string) State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if state, ok := p.states[name]; ok {
		return state
	}
	return StateUnknown
}

// Probe connects to target and disconnects. Any failure, including the
// timeout, reports the target as unreachable.
func (p *Prober) Probe(ctx context.Context, target Target) Result {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", target.Address())
	result := Result{Target: target, Latency: time.Since(start)}
	if err != nil {
		result.Err = err
		p.logger.Debug().Err(err).Str("target", target.Name).Str("address", target.Address()).Msg("Probe failed")
	} else {
		conn.Close()
		result.Reachable = true
	}

	p.record(result)
	return result
}

// ProbeAll probes all targets concurrently. Results are in target order.
func (p *Prober) ProbeAll(ctx context.Context, targets ...Target) []Result {
	results := make([]Result, len(targets))

	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			results[i] = p.Probe(ctx, target)
			return nil
		})
	}
	g.Wait()

	return results
}

func (p *Prober) record(result Result) {
	newState := StateUnreachable
	if result.Reachable {
		newState = StateReachable
	}

	p.stateMu.Lock()
	oldState, seen := p.states[result.Target.Name]
	p.states[result.Target.Name] = newState
	p.stateMu.Unlock()

	if !seen {
		oldState = StateUnknown
	}
	if oldState == newState {
		return
	}

	var event *zerolog.Event
	if newState == StateUnreachable {
		event = p.logger.Warn().AnErr("reason", result.Err)
	} else {
		event = p.logger.Info()
	}
	event.
		Str("target", result.Target.Name).
		Str("address", result.Target.Address()).
		Str("oldState", string(oldState)).
		Str("newState", string(newState)).
		Msg("Port reachability changed")
}
