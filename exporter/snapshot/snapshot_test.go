package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_OrderAndOverwrite(t *testing.T) {
	takenAt := time.Unix(1700000000, 0)
	b := NewBuilder(takenAt)

	b.Set("kaspa_node_current_timestamp", 1700000000)
	b.Set("kaspa_grpc_port_accessible", 1)
	b.SetBool("kaspa_is_synced", false)
	b.Set("kaspa_node_current_timestamp", 1700000001)

	snap := b.Build()

	assert.Equal(t, []string{"kaspa_node_current_timestamp", "kaspa_grpc_port_accessible", "kaspa_is_synced"}, snap.Names())
	v, ok := snap.Get("kaspa_node_current_timestamp")
	require.True(t, ok)
	assert.Equal(t, 1700000001.0, v)
	v, _ = snap.Get("kaspa_is_synced")
	assert.Equal(t, 0.0, v)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, takenAt, snap.TakenAt())
	assert.Equal(t, 30*time.Second, snap.Age(takenAt.Add(30*time.Second)))
}

func TestSnapshot_Immutable(t *testing.T) {
	b := NewBuilder(time.Now())
	b.Set("kaspa_exporter_up", 1)
	snap := b.Build()

	b.Set("kaspa_exporter_up", 0)
	b.Set("kaspa_peer_count", 8)

	v, _ := snap.Get("kaspa_exporter_up")
	assert.Equal(t, 1.0, v)
	assert.False(t, snap.Has("kaspa_peer_count"))

	entries := snap.Entries()
	entries[0].Value = 42
	v, _ = snap.Get("kaspa_exporter_up")
	assert.Equal(t, 1.0, v, "Entries must return a copy")
}

func TestSnapshot_Missing(t *testing.T) {
	snap := NewBuilder(time.Now()).Build()

	_, ok := snap.Get("kaspa_latest_block_number")
	assert.False(t, ok)
	assert.Empty(t, snap.Entries())
}
