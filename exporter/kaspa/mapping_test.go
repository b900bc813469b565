package kaspa

import (
	"encoding/json"
	"testing"
	"time"

	"kaspa-exporter/exporter/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func mapped(t *testing.T, raw string, now time.Time) *snapshot.Snapshot {
	t.Helper()

	b := snapshot.NewBuilder(now)
	MapMetrics(decode(t, raw), now, b)
	return b.Build()
}

func value(t *testing.T, snap *snapshot.Snapshot, name string) float64 {
	t.Helper()

	v, ok := snap.Get(name)
	require.True(t, ok, "%s not set", name)
	return v
}

func TestMapMetrics_Fields(t *testing.T) {
	now := time.Unix(1700000100, 0)

	tests := []struct {
		name string
		raw  string
		want map[string]float64
	}{
		{
			name: "virtual daa score",
			raw:  `{"virtualDaaScore": 12345.0}`,
			want: map[string]float64{MetricVirtualDAAScore: 12345},
		},
		{
			name: "block and header counts",
			raw:  `{"blockCount": 987654, "headerCount": 987700}`,
			want: map[string]float64{MetricLatestBlockNumber: 987654, MetricHeaderCount: 987700},
		},
		{
			name: "difficulty doubles as hashrate",
			raw:  `{"difficulty": 1.5e15}`,
			want: map[string]float64{MetricDifficulty: 1.5e15, MetricNetworkHashrate: 1.5e15},
		},
		{
			name: "past median time in milliseconds",
			raw:  `{"pastMedianTime": 1700000000000}`,
			want: map[string]float64{MetricLatestBlockTimestamp: 1700000000, MetricBlockTimeSeconds: 100},
		},
		{
			name: "past median time in milliseconds is floored",
			raw:  `{"pastMedianTime": 1700000000999}`,
			want: map[string]float64{MetricLatestBlockTimestamp: 1700000000, MetricBlockTimeSeconds: 100},
		},
		{
			name: "past median time in seconds",
			raw:  `{"pastMedianTime": 1700000040}`,
			want: map[string]float64{MetricLatestBlockTimestamp: 1700000040, MetricBlockTimeSeconds: 60},
		},
		{
			name: "mempool",
			raw:  `{"mempoolSize": 17}`,
			want: map[string]float64{MetricMempoolSize: 17, MetricMempoolTransactions: 17},
		},
		{
			name: "booleans",
			raw:  `{"isSynced": true, "isUtxoIndexed": false, "hasNotifyCommand": true}`,
			want: map[string]float64{MetricIsSynced: 1, MetricUTXOIndexEnabled: 0, MetricNotifyEnabled: 1},
		},
		{
			name: "tip hashes",
			raw:  `{"tipHashes": ["aa", "bb", "cc"]}`,
			want: map[string]float64{MetricTipCount: 3},
		},
		{
			name: "peers",
			raw:  `{"peerInfo": [{"is_connected": true}, {"is_connected": false}, {"id": "x"}, "opaque"]}`,
			want: map[string]float64{MetricPeerCount: 4, MetricConnectedPeerCount: 3},
		},
		{
			name: "mainnet",
			raw:  `{"network": "mainnet"}`,
			want: map[string]float64{MetricNetworkMainnet: 1},
		},
		{
			name: "testnet",
			raw:  `{"network": "testnet-10"}`,
			want: map[string]float64{MetricNetworkMainnet: 0},
		},
		{
			name: "server version embedded in text",
			raw:  `{"serverVersion": "kaspad v0.13.4-dev"}`,
			want: map[string]float64{MetricServerVersionMajor: 0, MetricServerVersionMinor: 13, MetricServerVersionPatch: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := mapped(t, tt.raw, now)

			assert.Equal(t, len(tt.want), snap.Len(), "names: %v", snap.Names())
			for name, want := range tt.want {
				assert.Equal(t, want, value(t, snap, name), name)
			}
		})
	}
}

func TestMapMetrics_TypeMismatchSkipped(t *testing.T) {
	snap := mapped(t, `{
		"blockCount": "100",
		"isSynced": 1,
		"tipHashes": "aa,bb",
		"pastMedianTime": null,
		"peerInfo": {"peerInfo": []},
		"network": "",
		"serverVersion": "dev-build",
		"hasNotifyCommand": "true"
	}`, time.Now())

	assert.Zero(t, snap.Len(), "unexpected gauges: %v", snap.Names())
}

func TestMapMetrics_Order(t *testing.T) {
	snap := mapped(t, `{
		"serverVersion": "0.14.1",
		"isSynced": true,
		"blockCount": 10,
		"virtualDaaScore": 20,
		"mempoolSize": 0
	}`, time.Now())

	assert.Equal(t, []string{
		MetricLatestBlockNumber,
		MetricVirtualDAAScore,
		MetricIsSynced,
		MetricMempoolSize,
		MetricMempoolTransactions,
		MetricServerVersionMajor,
		MetricServerVersionMinor,
		MetricServerVersionPatch,
	}, snap.Names())
}
