package kaspa

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kaspa-exporter/protocol"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "kaspa-exporter/kaspa"

// RPCClient is the subset of protocol.Client the poller needs
type RPCClient interface {
	Connect(ctx context.Context) error
	Call(ctx context.Context, method string, params any) (*protocol.Response, error)
	Close() error
}

// ClientFactory creates a fresh, unconnected client for one poll
type ClientFactory func() RPCClient

// NewClientFactory returns a factory producing protocol clients for cfg
func NewClientFactory(cfg protocol.ClientConfig, dialer protocol.TCPDialer, tracker protocol.Tracker, logger zerolog.Logger) ClientFactory {
	logger = protocol.Component(logger, "wrpc")
	return func() RPCClient {
		return protocol.NewClient(cfg, dialer, tracker, logger)
	}
}

// MergeFunc folds the decoded reply of one operation into the combined data
type MergeFunc func(dst map[string]any, data any)

// Operation is one RPC issued per poll
type Operation struct {
	Method string
	Merge  MergeFunc
}

// DefaultOperations are the status calls issued against a Kaspa node
var DefaultOperations = []Operation{
	{Method: "getInfo", Merge: MergeAll},
	{Method: "getBlockDagInfo", Merge: MergeAll},
	{Method: "getConnectedPeerInfo", Merge: NestUnder("peerInfo")},
}

// MergeAll copies every top-level field of an object reply into dst.
// Later operations overwrite fields of earlier ones.
func MergeAll(dst map[string]any, data any) {
	fields, ok := data.(map[string]any)
	if !ok {
		return
	}
	for k, v := range fields {
		dst[k] = v
	}
}

// NestUnder stores the reply under key. If the reply is an object with a
// non-empty key field, that field is stored instead of the whole reply.
func NestUnder(key string) MergeFunc {
	return func(dst map[string]any, data any) {
		if fields, ok := data.(map[string]any); ok {
			if inner, ok := fields[key]; ok && truthy(inner) {
				dst[key] = inner
				return
			}
		}
		dst[key] = data
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// Outcome records how one operation went
type Outcome struct {
	Method   string
	Err      error
	Duration time.Duration
}

// Result is the merged data of one poll
type Result struct {
	Data     map[string]any
	Outcomes []Outcome
}

// Failed returns the number of operations that failed
func (r *Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Option configures a Poller
type Option func(*Poller)

// WithTracerProvider sets the provider for RPC spans. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Poller) {
		p.tracer = tp.Tracer(tracerName)
	}
}

// Poller runs a fixed batch of RPCs over one short-lived connection
type Poller struct {
	factory ClientFactory
	ops     []Operation
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewPoller creates a poller. A nil ops slice uses DefaultOperations.
func NewPoller(factory ClientFactory, ops []Operation, logger zerolog.Logger, opts ...Option) *Poller {
	if ops == nil {
		ops = DefaultOperations
	}
	p := &Poller{
		factory: factory,
		ops:     ops,
		logger:  protocol.Component(logger, "poller"),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll connects once, issues every operation in order and closes the
// connection. A failed operation is recorded in the result and the batch
// continues. The returned error is non-nil only if the connection could not
// be set up.
func (p *Poller) Poll(ctx context.Context) (*Result, error) {
	client := p.factory()
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to connect to node")
		return nil, fmt.Errorf("connect: %w", err)
	}

	result := &Result{Data: make(map[string]any)}
	for _, op := range p.ops {
		start := time.Now()
		data, err := p.call(ctx, client, op.Method)
		result.Outcomes = append(result.Outcomes, Outcome{
			Method:   op.Method,
			Err:      err,
			Duration: time.Since(start),
		})
		if err != nil {
			p.logger.Warn().Err(err).Str("method", op.Method).Msg("RPC call failed")
			continue
		}
		op.Merge(result.Data, data)
		p.logger.Debug().Str("method", op.Method).Dur("duration", time.Since(start)).Msg("RPC call succeeded")
	}

	return result, nil
}

func (p *Poller) call(ctx context.Context, client RPCClient, method string) (data any, err error) {
	ctx, span := p.tracer.Start(ctx, "rpc "+method, trace.WithAttributes(attribute.String("rpc.method", method)))
	defer func() {
		span.SetAttributes(attribute.String("rpc.outcome", protocol.Outcome(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	resp, err := client.Call(ctx, method, nil)
	if err != nil {
		return nil, err
	}
	raw, err := resp.Data()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &protocol.Error{Kind: protocol.KindDecode, Op: method, Err: err}
	}
	return data, nil
}
