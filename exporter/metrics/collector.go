package metrics

import (
	"context"
	"strings"

	"kaspa-exporter/exporter/snapshot"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotSource hands out the snapshot to expose
type SnapshotSource interface {
	Get(ctx context.Context) *snapshot.Snapshot
}

// SnapshotCollector publishes every snapshot entry as an unlabelled gauge.
// The set of names varies between snapshots, so the collector is unchecked.
type SnapshotCollector struct {
	source SnapshotSource
}

// NewSnapshotCollector creates a collector reading from source on each gather
func NewSnapshotCollector(source SnapshotSource) *SnapshotCollector {
	return &SnapshotCollector{source: source}
}

// Describe sends nothing, which marks the collector as unchecked
func (c *SnapshotCollector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Get(context.Background())
	if snap == nil {
		return
	}
	for _, e := range snap.Entries() {
		desc := prometheus.NewDesc(e.Name, HelpText(e.Name), nil, nil)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, e.Value)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		ch <- m
	}
}

// HelpText derives a gauge's help string from its name:
// kaspa_peer_count becomes "Kaspa peer count".
func HelpText(name string) string {
	return "Kaspa " + strings.ReplaceAll(strings.TrimPrefix(name, "kaspa_"), "_", " ")
}
