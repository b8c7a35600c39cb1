package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	wlog "github.com/blockberries/walletrpc/log"
	"github.com/blockberries/walletrpc/metrics"
)

func clearLegacy(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvPort, EnvSocket, EnvCommandTimeout} {
		t.Setenv(name, "")
	}
}

func load(t *testing.T, opts LoadOptions) Config {
	t.Helper()
	cfg, err := Load(viper.New(), opts)
	require.NoError(t, err)
	return cfg
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearLegacy(t)
	cfg := load(t, LoadOptions{})

	require.Equal(t, "127.0.0.1:3000", cfg.RPC.Address)
	require.Equal(t, BackendWallet, cfg.Node.Backend)
	require.Equal(t, "nockchain-wallet", cfg.Node.Wallet)
	require.Equal(t, 120*time.Second, cfg.Node.RequestTimeout)
	require.Equal(t, 3, cfg.Node.MaxConsecutiveTimeouts)
	require.Equal(t, "info", cfg.Log.Level)
	require.False(t, cfg.Metrics.Enabled)
	require.Equal(t, "/metrics", cfg.Metrics.Path)

	// The wallet backend cannot run without a socket.
	require.ErrorContains(t, cfg.Validate(), "node.socket")
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv(EnvPort, "8080")
	t.Setenv(EnvSocket, "/var/run/nockchain.sock")
	t.Setenv(EnvCommandTimeout, "30")
	cfg := load(t, LoadOptions{})

	require.Equal(t, "127.0.0.1:8080", cfg.RPC.Address)
	require.Equal(t, "/var/run/nockchain.sock", cfg.Node.Socket)
	require.Equal(t, 30*time.Second, cfg.Node.RequestTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_LegacyEnvInvalid(t *testing.T) {
	cases := map[string][2]string{
		"port text":     {EnvPort, "http"},
		"port range":    {EnvPort, "70000"},
		"port zero":     {EnvPort, "0"},
		"timeout text":  {EnvCommandTimeout, "soon"},
		"timeout zero":  {EnvCommandTimeout, "0"},
		"timeout minus": {EnvCommandTimeout, "-5"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearLegacy(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load(viper.New(), LoadOptions{})
			require.ErrorContains(t, err, kv[0])
		})
	}
}

func TestLoad_PrefixedEnvBeatsLegacy(t *testing.T) {
	clearLegacy(t)
	t.Setenv(EnvPort, "8080")
	t.Setenv("WALLETRPC_RPC_ADDRESS", "0.0.0.0:9000")
	t.Setenv("WALLETRPC_NODE_REQUEST_TIMEOUT", "45s")
	cfg := load(t, LoadOptions{})

	require.Equal(t, "0.0.0.0:9000", cfg.RPC.Address)
	require.Equal(t, 45*time.Second, cfg.Node.RequestTimeout)
}

func TestLoad_File(t *testing.T) {
	clearLegacy(t)
	t.Setenv(EnvPort, "8080")
	path := writeFile(t, "walletrpc.yaml", `
rpc:
  address: 127.0.0.1:4000
node:
  backend: memory
  ledger: /etc/walletrpc/ledger.yaml
  request_timeout: 5s
  max_in_flight: 4
log:
  level: debug
  encoding: json
  file:
    path: /var/log/walletrpc.log
metrics:
  enabled: true
  address: 127.0.0.1:9100
`)
	cfg := load(t, LoadOptions{File: path})

	require.Equal(t, "127.0.0.1:4000", cfg.RPC.Address, "file wins over legacy PORT")
	require.Equal(t, BackendMemory, cfg.Node.Backend)
	require.Equal(t, "/etc/walletrpc/ledger.yaml", cfg.Node.Ledger)
	require.Equal(t, 5*time.Second, cfg.Node.RequestTimeout)
	require.Equal(t, int64(4), cfg.Node.MaxInFlight)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "/var/log/walletrpc.log", cfg.Log.File.Path)
	require.Equal(t, 100, cfg.Log.File.MaxSizeMB, "unset nested keys keep defaults")
	require.Equal(t, metrics.Config{Enabled: true, Address: "127.0.0.1:9100", Path: "/metrics"}, cfg.Metrics)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	clearLegacy(t)
	_, err := Load(viper.New(), LoadOptions{File: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	clearLegacy(t)
	path := writeFile(t, ".env", "NOCKCHAIN_SOCKET=/from/dotenv.sock\nPORT=3100\nWALLETRPC_LOG_LEVEL=warn\n")
	cfg := load(t, LoadOptions{DotEnv: path})

	require.Equal(t, "/from/dotenv.sock", cfg.Node.Socket)
	require.Equal(t, "127.0.0.1:3100", cfg.RPC.Address)
	require.Equal(t, "warn", cfg.Log.Level)

	// The process environment wins over .env.
	t.Setenv(EnvSocket, "/from/env.sock")
	cfg = load(t, LoadOptions{DotEnv: path})
	require.Equal(t, "/from/env.sock", cfg.Node.Socket)

	// A missing .env is fine.
	cfg = load(t, LoadOptions{DotEnv: filepath.Join(t.TempDir(), ".env")})
	require.Equal(t, "/from/env.sock", cfg.Node.Socket)
}

func validConfig() Config {
	return Config{
		RPC: RPCConfig{Address: "127.0.0.1:3000"},
		Node: NodeConfig{
			Backend:        BackendWallet,
			Socket:         "/tmp/nock.sock",
			RequestTimeout: time.Minute,
			HealthInterval: time.Second,
		},
		Log:     wlog.DefaultConfig(),
		Metrics: metrics.Config{Enabled: true, Address: "127.0.0.1:9464", Path: "/metrics"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no port", func(c *Config) { c.RPC.Address = "127.0.0.1" }, "rpc.address"},
		{"bad port", func(c *Config) { c.RPC.Address = "127.0.0.1:99999" }, "rpc.address"},
		{"backend", func(c *Config) { c.Node.Backend = "rest" }, "node.backend"},
		{"remote target", func(c *Config) { c.Node.Backend = BackendRemote }, "node.remote"},
		{"timeout", func(c *Config) { c.Node.RequestTimeout = 0 }, "request_timeout"},
		{"in flight", func(c *Config) { c.Node.MaxInFlight = -1 }, "max_in_flight"},
		{"health", func(c *Config) { c.Node.HealthInterval = 0 }, "health_interval"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "level"},
		{"log encoding", func(c *Config) { c.Log.Encoding = "xml" }, "log.encoding"},
		{"metrics addr", func(c *Config) { c.Metrics.Address = "nowhere" }, "metrics.address"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	memory := validConfig()
	memory.Node.Backend = BackendMemory
	memory.Node.Socket = ""
	memory.Metrics.Enabled = false
	memory.Metrics.Address = ""
	require.NoError(t, memory.Validate())
}
