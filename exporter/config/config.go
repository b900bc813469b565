package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Trace exporter names
const (
	TraceNone   = "none"
	TraceOTLP   = "otlp"
	TraceStdout = "stdout"
)

// Config holds all resolved exporter configuration
type Config struct {
	ListenPort      int
	KaspaHost       string
	GRPCPort        int
	JSONRPCPort     int
	JSONRPCPath     string
	CacheTTL        time.Duration
	CallTimeout     time.Duration
	ProbeTimeout    time.Duration
	ShutdownTimeout time.Duration
	ExporterID      string
	LogLevel        string
	LogFormat       string
	LogFile         string // If set, logs are also written to this rotated file
	TraceExporter   string
	TraceEndpoint   string
	ConfigFile      string
}

// flagValues holds raw flag values (populated by flag.Parse)
type flagValues struct {
	port            string
	kaspaHost       string
	grpcPort        string
	jsonRPCPort     string
	jsonRPCPath     string
	cacheSeconds    string
	callTimeout     string
	probeTimeout    string
	shutdownTimeout string
	exporterID      string
	logLevel        string
	logFormat       string
	logFile         string
	traceExporter   string
	traceEndpoint   string
	configFile      string
}

var flags flagValues

func init() {
	flag.StringVar(&flags.port, "port", "",
		"Port for the HTTP listener (env: KASPA_EXPORTER_PORT, PORT)")
	flag.StringVar(&flags.kaspaHost, "kaspa-host", "",
		"Kaspa node host (env: KASPA_EXPORTER_KASPA_HOST, KASPA_HOST)")
	flag.StringVar(&flags.grpcPort, "kaspa-grpc-port", "",
		"Kaspa node gRPC port, probed for reachability (env: KASPA_EXPORTER_GRPC_PORT, KASPA_GRPC_PORT)")
	flag.StringVar(&flags.jsonRPCPort, "kaspa-json-rpc-port", "",
		"Kaspa node wRPC JSON port (env: KASPA_EXPORTER_JSON_RPC_PORT, KASPA_JSON_RPC_PORT)")
	flag.StringVar(&flags.jsonRPCPath, "kaspa-json-rpc-path", "",
		"Request path for the WebSocket upgrade (env: KASPA_EXPORTER_JSON_RPC_PATH)")
	flag.StringVar(&flags.cacheSeconds, "cache-seconds", "",
		"How long a snapshot is served before the node is polled again (env: KASPA_EXPORTER_CACHE_SECONDS, CACHE_SECONDS)")
	flag.StringVar(&flags.callTimeout, "call-timeout", "",
		"Timeout for each RPC call (env: KASPA_EXPORTER_CALL_TIMEOUT)")
	flag.StringVar(&flags.probeTimeout, "probe-timeout", "",
		"Timeout for each port reachability probe (env: KASPA_EXPORTER_PROBE_TIMEOUT)")
	flag.StringVar(&flags.shutdownTimeout, "shutdown-timeout", "",
		"Graceful shutdown timeout for draining requests (env: KASPA_EXPORTER_SHUTDOWN_TIMEOUT)")
	flag.StringVar(&flags.exporterID, "exporter-id", "",
		"Exporter ID (env: KASPA_EXPORTER_ID)")
	flag.StringVar(&flags.logLevel, "log-level", "",
		"Log level: DEBUG, INFO, WARN, ERROR (env: KASPA_EXPORTER_LOG_LEVEL)")
	flag.StringVar(&flags.logFormat, "log-format", "",
		"Log format: json, console (env: KASPA_EXPORTER_LOG_FORMAT)")
	flag.StringVar(&flags.logFile, "log-file", "",
		"Also write logs to this file, rotated by size (env: KASPA_EXPORTER_LOG_FILE)")
	flag.StringVar(&flags.traceExporter, "trace-exporter", "",
		"Trace exporter: none, otlp, stdout (env: KASPA_EXPORTER_TRACE_EXPORTER)")
	flag.StringVar(&flags.traceEndpoint, "trace-endpoint", "",
		"OTLP/HTTP endpoint for traces (env: KASPA_EXPORTER_TRACE_ENDPOINT, OTEL_EXPORTER_OTLP_ENDPOINT)")
	flag.StringVar(&flags.configFile, "config", "",
		"Optional config file, YAML/JSON/TOML (env: KASPA_EXPORTER_CONFIG)")
}

// Load parses flags, reads env vars and the optional config file, applies
// defaults, and returns Config
func Load() (*Config, error) {
	flag.Parse()
	return fromSources(flags)
}

func fromSources(fv flagValues) (*Config, error) {
	configFile := resolveString(fv.configFile, []string{"KASPA_EXPORTER_CONFIG"}, "", "")
	file, err := readFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenPort: resolveInt(fv.port,
			[]string{"KASPA_EXPORTER_PORT", "PORT"}, file.get("port"), 9110),
		KaspaHost: resolveString(fv.kaspaHost,
			[]string{"KASPA_EXPORTER_KASPA_HOST", "KASPA_HOST"}, file.get("kaspa_host"), "localhost"),
		GRPCPort: resolveInt(fv.grpcPort,
			[]string{"KASPA_EXPORTER_GRPC_PORT", "KASPA_GRPC_PORT"}, file.get("kaspa_grpc_port"), 16110),
		JSONRPCPort: resolveInt(fv.jsonRPCPort,
			[]string{"KASPA_EXPORTER_JSON_RPC_PORT", "KASPA_JSON_RPC_PORT"}, file.get("kaspa_json_rpc_port"), 18110),
		JSONRPCPath: resolveString(fv.jsonRPCPath,
			[]string{"KASPA_EXPORTER_JSON_RPC_PATH"}, file.get("kaspa_json_rpc_path"), "/"),
		CacheTTL: resolveDuration(fv.cacheSeconds,
			[]string{"KASPA_EXPORTER_CACHE_SECONDS", "CACHE_SECONDS"}, file.get("cache_seconds"), 30*time.Second),
		CallTimeout: resolveDuration(fv.callTimeout,
			[]string{"KASPA_EXPORTER_CALL_TIMEOUT"}, file.get("call_timeout"), 3*time.Second),
		ProbeTimeout: resolveDuration(fv.probeTimeout,
			[]string{"KASPA_EXPORTER_PROBE_TIMEOUT"}, file.get("probe_timeout"), 2*time.Second),
		ShutdownTimeout: resolveDuration(fv.shutdownTimeout,
			[]string{"KASPA_EXPORTER_SHUTDOWN_TIMEOUT"}, file.get("shutdown_timeout"), 10*time.Second),
		ExporterID: resolveString(fv.exporterID,
			[]string{"KASPA_EXPORTER_ID"}, file.get("exporter_id"), uuid.New().String()[:8]),
		LogLevel: resolveString(fv.logLevel,
			[]string{"KASPA_EXPORTER_LOG_LEVEL"}, file.get("log_level"), "INFO"),
		LogFormat: resolveString(fv.logFormat,
			[]string{"KASPA_EXPORTER_LOG_FORMAT"}, file.get("log_format"), "json"),
		LogFile: resolveString(fv.logFile,
			[]string{"KASPA_EXPORTER_LOG_FILE"}, file.get("log_file"), ""),
		TraceExporter: strings.ToLower(resolveString(fv.traceExporter,
			[]string{"KASPA_EXPORTER_TRACE_EXPORTER"}, file.get("trace_exporter"), TraceNone)),
		TraceEndpoint: resolveString(fv.traceEndpoint,
			[]string{"KASPA_EXPORTER_TRACE_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, file.get("trace_endpoint"), ""),
		ConfigFile: configFile,
	}

	return cfg, nil
}

// fileSource is the optional config file layer; a nil source yields nothing
type fileSource struct {
	v *viper.Viper
}

func readFile(path string) (fileSource, error) {
	if path == "" {
		return fileSource{}, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fileSource{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return fileSource{v: v}, nil
}

func (f fileSource) get(key string) string {
	if f.v == nil || !f.v.IsSet(key) {
		return ""
	}
	return f.v.GetString(key)
}

// resolveString returns the first non-empty value from: flag, env vars, config file, default
func resolveString(flagVal string, envVars []string, fileVal string, defaultVal string) string {
	if flagVal != "" {
		return flagVal
	}
	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			return val
		}
	}
	if fileVal != "" {
		return fileVal
	}
	return defaultVal
}

// resolveDuration returns duration from: flag, env vars, config file, default
// Supports both duration strings ("10s", "1m") and plain seconds ("60")
func resolveDuration(flagVal string, envVars []string, fileVal string, defaultVal time.Duration) time.Duration {
	val := resolveString(flagVal, envVars, fileVal, "")
	if val == "" {
		return defaultVal
	}
	return parseDuration(val, defaultVal)
}

// resolveInt returns int from: flag, env vars, config file, default
func resolveInt(flagVal string, envVars []string, fileVal string, defaultVal int) int {
	val := resolveString(flagVal, envVars, fileVal, "")
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// parseDuration parses a duration string, supporting both "10s" format and plain seconds
func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if duration, err := time.ParseDuration(val); err == nil {
		return duration
	}
	return defaultVal
}

// Validate checks that config values are usable and returns an error if not
func (c *Config) Validate() error {
	for _, p := range []struct {
		name string
		port int
	}{
		{"--port", c.ListenPort},
		{"--kaspa-grpc-port", c.GRPCPort},
		{"--kaspa-json-rpc-port", c.JSONRPCPort},
	} {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", p.name, p.port)
		}
	}
	if c.KaspaHost == "" {
		return fmt.Errorf("--kaspa-host is required")
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"--cache-seconds", c.CacheTTL},
		{"--call-timeout", c.CallTimeout},
		{"--probe-timeout", c.ProbeTimeout},
		{"--shutdown-timeout", c.ShutdownTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.val)
		}
	}
	switch c.TraceExporter {
	case TraceNone, TraceOTLP, TraceStdout:
	default:
		return fmt.Errorf("--trace-exporter must be one of none, otlp, stdout, got %q", c.TraceExporter)
	}
	return nil
}

// LogFields returns key-value pairs for structured logging of config
func (c *Config) LogFields() map[string]interface{} {
	return map[string]interface{}{
		"port":            c.ListenPort,
		"kaspaHost":       c.KaspaHost,
		"grpcPort":        c.GRPCPort,
		"jsonRPCPort":     c.JSONRPCPort,
		"jsonRPCPath":     c.JSONRPCPath,
		"cacheTTL":        c.CacheTTL.String(),
		"callTimeout":     c.CallTimeout.String(),
		"probeTimeout":    c.ProbeTimeout.String(),
		"shutdownTimeout": c.ShutdownTimeout.String(),
		"logLevel":        c.LogLevel,
		"logFormat":       c.LogFormat,
		"logFile":         c.LogFile,
		"traceExporter":   c.TraceExporter,
		"configFile":      c.ConfigFile,
	}
}
