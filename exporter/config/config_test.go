package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envNames = []string{
	"KASPA_EXPORTER_PORT", "PORT",
	"KASPA_EXPORTER_KASPA_HOST", "KASPA_HOST",
	"KASPA_EXPORTER_GRPC_PORT", "KASPA_GRPC_PORT",
	"KASPA_EXPORTER_JSON_RPC_PORT", "KASPA_JSON_RPC_PORT",
	"KASPA_EXPORTER_JSON_RPC_PATH",
	"KASPA_EXPORTER_CACHE_SECONDS", "CACHE_SECONDS",
	"KASPA_EXPORTER_CALL_TIMEOUT",
	"KASPA_EXPORTER_PROBE_TIMEOUT",
	"KASPA_EXPORTER_SHUTDOWN_TIMEOUT",
	"KASPA_EXPORTER_ID",
	"KASPA_EXPORTER_LOG_LEVEL",
	"KASPA_EXPORTER_LOG_FORMAT",
	"KASPA_EXPORTER_LOG_FILE",
	"KASPA_EXPORTER_TRACE_EXPORTER",
	"KASPA_EXPORTER_TRACE_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"KASPA_EXPORTER_CONFIG",
}

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := fromSources(flagValues{})
	require.NoError(t, err)

	assert.Equal(t, 9110, cfg.ListenPort)
	assert.Equal(t, "localhost", cfg.KaspaHost)
	assert.Equal(t, 16110, cfg.GRPCPort)
	assert.Equal(t, 18110, cfg.JSONRPCPort)
	assert.Equal(t, "/", cfg.JSONRPCPath)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 3*time.Second, cfg.CallTimeout)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Len(t, cfg.ExporterID, 8)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, TraceNone, cfg.TraceExporter)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_UnprefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9200")
	t.Setenv("KASPA_HOST", "kaspad.internal")
	t.Setenv("KASPA_GRPC_PORT", "26110")
	t.Setenv("KASPA_JSON_RPC_PORT", "28110")
	t.Setenv("CACHE_SECONDS", "15")

	cfg, err := fromSources(flagValues{})
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.ListenPort)
	assert.Equal(t, "kaspad.internal", cfg.KaspaHost)
	assert.Equal(t, 26110, cfg.GRPCPort)
	assert.Equal(t, 28110, cfg.JSONRPCPort)
	assert.Equal(t, 15*time.Second, cfg.CacheTTL)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "exporter.yaml", `
port: 9300
kaspa_host: from-file
cache_seconds: 45
call_timeout: 5s
log_level: DEBUG
trace_exporter: stdout
`)
	t.Setenv("KASPA_EXPORTER_CONFIG", path)
	t.Setenv("KASPA_HOST", "from-unprefixed-env")
	t.Setenv("KASPA_EXPORTER_KASPA_HOST", "from-env")
	t.Setenv("KASPA_EXPORTER_PORT", "9400")

	cfg, err := fromSources(flagValues{port: "9500"})
	require.NoError(t, err)

	assert.Equal(t, 9500, cfg.ListenPort, "flag wins over env and file")
	assert.Equal(t, "from-env", cfg.KaspaHost, "prefixed env wins over unprefixed env and file")
	assert.Equal(t, 45*time.Second, cfg.CacheTTL, "file wins over default")
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, TraceStdout, cfg.TraceExporter)
	assert.Equal(t, 18110, cfg.JSONRPCPort, "default when no source sets it")
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_JSONConfigFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, "exporter.json", `{"kaspa_json_rpc_port": 17110, "exporter_id": "node-a"}`)

	cfg, err := fromSources(flagValues{configFile: path})
	require.NoError(t, err)

	assert.Equal(t, 17110, cfg.JSONRPCPort)
	assert.Equal(t, "node-a", cfg.ExporterID)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := fromSources(flagValues{configFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_UnparseableValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("KASPA_EXPORTER_PORT", "not-a-port")
	t.Setenv("KASPA_EXPORTER_CALL_TIMEOUT", "soon")

	cfg, err := fromSources(flagValues{})
	require.NoError(t, err)

	assert.Equal(t, 9110, cfg.ListenPort)
	assert.Equal(t, 3*time.Second, cfg.CallTimeout)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30", 30 * time.Second},
		{"1m30s", 90 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"bogus", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDuration(tt.in, time.Minute))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ListenPort:      9110,
			KaspaHost:       "localhost",
			GRPCPort:        16110,
			JSONRPCPort:     18110,
			CacheTTL:        30 * time.Second,
			CallTimeout:     3 * time.Second,
			ProbeTimeout:    2 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			TraceExporter:   TraceNone,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.ListenPort = 0 }, wantErr: "--port"},
		{name: "grpc port too large", mutate: func(c *Config) { c.GRPCPort = 70000 }, wantErr: "--kaspa-grpc-port"},
		{name: "json rpc port negative", mutate: func(c *Config) { c.JSONRPCPort = -1 }, wantErr: "--kaspa-json-rpc-port"},
		{name: "empty host", mutate: func(c *Config) { c.KaspaHost = "" }, wantErr: "--kaspa-host"},
		{name: "zero ttl", mutate: func(c *Config) { c.CacheTTL = 0 }, wantErr: "--cache-seconds"},
		{name: "negative call timeout", mutate: func(c *Config) { c.CallTimeout = -time.Second }, wantErr: "--call-timeout"},
		{name: "unknown trace exporter", mutate: func(c *Config) { c.TraceExporter = "jaeger" }, wantErr: "--trace-exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
