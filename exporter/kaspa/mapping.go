package kaspa

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"kaspa-exporter/exporter/snapshot"
)

// Gauge names published by the exporter
const (
	MetricNodeCurrentTimestamp = "kaspa_node_current_timestamp"
	MetricLastScrapeTimestamp  = "kaspa_exporter_last_scrape_timestamp"
	MetricGRPCPortAccessible   = "kaspa_grpc_port_accessible"
	MetricJSONRPCAccessible    = "kaspa_json_rpc_port_accessible"
	MetricNodeResponsive       = "kaspa_node_responsive"
	MetricExporterUp           = "kaspa_exporter_up"

	MetricLatestBlockNumber    = "kaspa_latest_block_number"
	MetricHeaderCount          = "kaspa_header_count"
	MetricVirtualDAAScore      = "kaspa_virtual_daa_score"
	MetricDifficulty           = "kaspa_difficulty"
	MetricNetworkHashrate      = "kaspa_network_hashrate"
	MetricIsSynced             = "kaspa_is_synced"
	MetricTipCount             = "kaspa_tip_count"
	MetricLatestBlockTimestamp = "kaspa_latest_block_timestamp"
	MetricBlockTimeSeconds     = "kaspa_block_time_seconds"
	MetricMempoolSize          = "kaspa_mempool_size"
	MetricMempoolTransactions  = "kaspa_mempool_transactions"
	MetricPeerCount            = "kaspa_peer_count"
	MetricConnectedPeerCount   = "kaspa_connected_peer_count"
	MetricUTXOIndexEnabled     = "kaspa_utxo_index_enabled"
	MetricNetworkMainnet       = "kaspa_network_mainnet"
	MetricServerVersionMajor   = "kaspa_server_version_major"
	MetricServerVersionMinor   = "kaspa_server_version_minor"
	MetricServerVersionPatch   = "kaspa_server_version_patch"
	MetricNotifyEnabled        = "kaspa_notify_enabled"
)

// pastMedianTime values above this are milliseconds
const millisecondThreshold = 1e12

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

type fieldRule struct {
	field string
	apply func(b *snapshot.Builder, value any, now time.Time)
}

// Applied in order. A rule only fires when the field has the expected JSON type.
var fieldRules = []fieldRule{
	{field: "blockCount", apply: number(MetricLatestBlockNumber)},
	{field: "headerCount", apply: number(MetricHeaderCount)},
	{field: "virtualDaaScore", apply: number(MetricVirtualDAAScore)},
	// Difficulty doubles as a rough hashrate estimate
	{field: "difficulty", apply: number(MetricDifficulty, MetricNetworkHashrate)},
	{field: "isSynced", apply: boolean(MetricIsSynced)},
	{field: "tipHashes", apply: length(MetricTipCount)},
	{field: "pastMedianTime", apply: pastMedianTime},
	{field: "mempoolSize", apply: number(MetricMempoolSize, MetricMempoolTransactions)},
	{field: "peerInfo", apply: peerInfo},
	{field: "isUtxoIndexed", apply: boolean(MetricUTXOIndexEnabled)},
	{field: "network", apply: network},
	{field: "serverVersion", apply: serverVersion},
	{field: "hasNotifyCommand", apply: boolean(MetricNotifyEnabled)},
}

// MapMetrics converts merged node data into gauges on b. Fields that are
// missing or of an unexpected type produce nothing.
func MapMetrics(data map[string]any, now time.Time, b *snapshot.Builder) {
	for _, rule := range fieldRules {
		value, ok := data[rule.field]
		if !ok {
			continue
		}
		rule.apply(b, value, now)
	}
}

func number(names ...string) func(*snapshot.Builder, any, time.Time) {
	return func(b *snapshot.Builder, value any, _ time.Time) {
		v, ok := value.(float64)
		if !ok {
			return
		}
		for _, name := range names {
			b.Set(name, v)
		}
	}
}

func boolean(name string) func(*snapshot.Builder, any, time.Time) {
	return func(b *snapshot.Builder, value any, _ time.Time) {
		if v, ok := value.(bool); ok {
			b.SetBool(name, v)
		}
	}
}

func length(name string) func(*snapshot.Builder, any, time.Time) {
	return func(b *snapshot.Builder, value any, _ time.Time) {
		if v, ok := value.([]any); ok {
			b.Set(name, float64(len(v)))
		}
	}
}

func pastMedianTime(b *snapshot.Builder, value any, now time.Time) {
	ts, ok := value.(float64)
	if !ok {
		return
	}
	if ts > millisecondThreshold {
		ts = math.Floor(ts / 1000)
	}
	b.Set(MetricLatestBlockTimestamp, ts)
	b.Set(MetricBlockTimeSeconds, float64(now.Unix())-ts)
}

// peerInfo counts peers; an entry is connected unless is_connected is false
func peerInfo(b *snapshot.Builder, value any, _ time.Time) {
	peers, ok := value.([]any)
	if !ok {
		return
	}
	connected := 0
	for _, peer := range peers {
		if fields, ok := peer.(map[string]any); ok {
			if isConnected, ok := fields["is_connected"].(bool); ok && !isConnected {
				continue
			}
		}
		connected++
	}
	b.Set(MetricPeerCount, float64(len(peers)))
	b.Set(MetricConnectedPeerCount, float64(connected))
}

func network(b *snapshot.Builder, value any, _ time.Time) {
	name, ok := value.(string)
	if !ok || name == "" {
		return
	}
	b.SetBool(MetricNetworkMainnet, name == "mainnet")
}

func serverVersion(b *snapshot.Builder, value any, _ time.Time) {
	version, ok := value.(string)
	if !ok {
		return
	}
	m := versionPattern.FindStringSubmatch(version)
	if m == nil {
		return
	}
	parts := make([]float64, 3)
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return
		}
		parts[i] = float64(n)
	}
	b.Set(MetricServerVersionMajor, parts[0])
	b.Set(MetricServerVersionMinor, parts[1])
	b.Set(MetricServerVersionPatch, parts[2])
}
