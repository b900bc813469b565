package handlers

import (
	"net/http"
	"time"

	"kaspa-exporter/protocol"

	"github.com/rs/zerolog"
)

const indexPage = `<html>
<head><title>Kaspa Prometheus Exporter</title></head>
<body>
<h1>Kaspa Prometheus Exporter</h1>
<p><a href="/metrics">Metrics</a> | <a href="/health">Health</a></p>
<h2>Metrics</h2>
<ul>
<li><strong>kaspa_virtual_daa_score</strong> - Virtual DAA score</li>
<li><strong>kaspa_network_hashrate</strong> - Estimated hashrate</li>
<li><strong>kaspa_block_time_seconds</strong> - Time since last block</li>
<li><strong>kaspa_peer_count</strong> - Connected peers</li>
<li><strong>kaspa_mempool_transactions</strong> - Pending transactions</li>
<li><strong>kaspa_utxo_index_enabled</strong> - UTXO index status</li>
<li><strong>kaspa_exporter_up</strong> - Node reachable from the exporter</li>
</ul>
</body>
</html>
`

// NewRouter builds the exporter's HTTP surface: /metrics, /health and an
// index page. Anything else is a 404 and a panicking handler becomes a 500.
func NewRouter(metricsHandler, healthHandler http.Handler, logger zerolog.Logger) http.Handler {
	logger = protocol.Component(logger, "http")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/health", healthHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, CodeNotFound, "Not Found")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexPage))
	})

	return Recover(logger, LogRequests(logger, mux))
}

// Recover turns a handler panic into a 500 response
func Recover(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Handler panicked")
			writeError(w, http.StatusInternalServerError, CodeInternal, "Internal Server Error")
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LogRequests logs every request at debug level
func LogRequests(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
