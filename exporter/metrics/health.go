package metrics

import (
	"encoding/json"
	"net/http"
	"time"
)

// Target describes the node being exported
type Target struct {
	Host        string `json:"kaspaHost"`
	GRPCPort    int    `json:"kaspaGrpcPort"`
	JSONRPCPort int    `json:"kaspaJsonRpcPort"`
}

// ExporterInfo provides exporter state for health reporting
type ExporterInfo interface {
	ExporterID() string
	StartTime() time.Time
	Target() Target
	LastRefresh() (at time.Time, result string, ok bool)
}

type lastRefresh struct {
	Timestamp string `json:"timestamp"`
	Result    string `json:"result"`
}

// HealthHandler returns a health check endpoint handler. It reports the
// exporter process only and never touches the node.
func HealthHandler(info ExporterInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var last *lastRefresh
		if at, result, ok := info.LastRefresh(); ok {
			last = &lastRefresh{Timestamp: at.UTC().Format(time.RFC3339), Result: result}
		}

		health := map[string]interface{}{
			"status":       "healthy",
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
			"exporter_id":  info.ExporterID(),
			"uptime":       time.Since(info.StartTime()).Round(time.Second).String(),
			"config":       info.Target(),
			"last_refresh": last,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	}
}
