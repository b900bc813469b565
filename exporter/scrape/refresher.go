package scrape

import (
	"context"
	"fmt"
	"time"

	"kaspa-exporter/exporter/health"
	"kaspa-exporter/exporter/kaspa"
	"kaspa-exporter/exporter/snapshot"
	"kaspa-exporter/protocol"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "kaspa-exporter/scrape"

// Result labels for a refresh
const (
	ResultOK          = "ok"
	ResultPartial     = "partial"
	ResultUnreachable = "unreachable"
	ResultFailed      = "failed"
)

// Prober checks port reachability
type Prober interface {
	ProbeAll(ctx context.Context, targets ...health.Target) []health.Result
}

// Poller fetches node data over the JSON-RPC port
type Poller interface {
	Poll(ctx context.Context) (*kaspa.Result, error)
}

// Config names the node ports to probe
type Config struct {
	Host        string
	GRPCPort    int
	JSONRPCPort int
}

// Option configures a Refresher
type Option func(*Refresher)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		r.now = now
	}
}

// WithTracerProvider sets the provider for refresh spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Refresher) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// Refresher computes one metrics snapshot per call
type Refresher struct {
	grpc    health.Target
	jsonRPC health.Target
	prober  Prober
	poller  Poller
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewRefresher creates a refresher probing cfg's ports and polling through poller
func NewRefresher(cfg Config, prober Prober, poller Poller, logger zerolog.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		grpc:    health.Target{Name: "grpc", Host: cfg.Host, Port: cfg.GRPCPort},
		jsonRPC: health.Target{Name: "json_rpc", Host: cfg.Host, Port: cfg.JSONRPCPort},
		prober:  prober,
		poller:  poller,
		logger:  protocol.Component(logger, "refresher"),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh probes both ports, polls the node if the JSON-RPC port is
// reachable and maps the replies to gauges. It always returns a snapshot;
// upstream failures are reflected in the gauges. The second return value
// labels how the refresh went.
func (r *Refresher) Refresh(ctx context.Context) (*snapshot.Snapshot, string) {
	ctx, span := r.tracer.Start(ctx, "scrape.Refresh")
	defer span.End()

	start := r.now()
	b := snapshot.NewBuilder(start)
	b.Set(kaspa.MetricNodeCurrentTimestamp, float64(start.Unix()))
	b.Set(kaspa.MetricLastScrapeTimestamp, float64(start.Unix()))

	results := r.prober.ProbeAll(ctx, r.grpc, r.jsonRPC)
	grpcUp, jsonRPCUp := results[0].Reachable, results[1].Reachable
	b.SetBool(kaspa.MetricGRPCPortAccessible, grpcUp)
	b.SetBool(kaspa.MetricJSONRPCAccessible, jsonRPCUp)
	b.SetBool(kaspa.MetricNodeResponsive, grpcUp || jsonRPCUp)
	span.SetAttributes(
		attribute.Bool("kaspa.grpc_reachable", grpcUp),
		attribute.Bool("kaspa.json_rpc_reachable", jsonRPCUp),
	)

	result := ResultOK
	var err error
	switch {
	case !grpcUp && !jsonRPCUp:
		err = &protocol.Error{Kind: protocol.KindUnreachable, Op: "probe", Err: fmt.Errorf("%s and %s unreachable", r.grpc.Address(), r.jsonRPC.Address())}
		result = ResultUnreachable
	case jsonRPCUp:
		var failed int
		failed, err = r.poll(ctx, b)
		if err != nil {
			result = ResultFailed
		} else if failed > 0 {
			result = ResultPartial
		}
	}

	if err != nil {
		r.logger.Warn().Err(err).Msg("Node unavailable, publishing sentinel values")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.Set(kaspa.MetricExporterUp, 0)
		b.Set(kaspa.MetricLatestBlockNumber, -1)
		b.Set(kaspa.MetricLatestBlockTimestamp, -1)
	} else {
		if !b.Has(kaspa.MetricLatestBlockNumber) {
			b.Set(kaspa.MetricLatestBlockNumber, 0)
		}
		if ts, ok := b.Get(kaspa.MetricLatestBlockTimestamp); !ok || ts == 0 {
			b.Set(kaspa.MetricLatestBlockTimestamp, float64(r.now().Unix()))
		}
		up, _ := b.Get(kaspa.MetricNodeResponsive)
		b.Set(kaspa.MetricExporterUp, up)
	}

	span.SetAttributes(attribute.String("kaspa.refresh_result", result))
	r.logger.Debug().
		Str("result", result).
		Bool("grpcReachable", grpcUp).
		Bool("jsonRPCReachable", jsonRPCUp).
		Dur("duration", r.now().Sub(start)).
		Msg("Refresh complete")

	return b.Build(), result
}

// poll copies the mapped node data onto b only once the whole poll and
// mapping completed. A panic is reported as an error.
func (r *Refresher) poll(ctx context.Context, b *snapshot.Builder) (failed int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("poll panicked: %v", rec)
		}
	}()

	res, err := r.poller.Poll(ctx)
	if err != nil {
		return 0, err
	}

	now := r.now()
	scratch := snapshot.NewBuilder(now)
	kaspa.MapMetrics(res.Data, now, scratch)
	for _, e := range scratch.Build().Entries() {
		b.Set(e.Name, e.Value)
	}
	return res.Failed(), nil
}
