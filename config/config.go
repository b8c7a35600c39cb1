// Package config loads the walletrpcd configuration from a config
// file, WALLETRPC_* environment variables, command-line flags and the
// legacy PORT / NOCKCHAIN_SOCKET / COMMAND_TIMEOUT_SECS variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	wlog "github.com/blockberries/walletrpc/log"
	"github.com/blockberries/walletrpc/metrics"
	"github.com/blockberries/walletrpc/node"
	"github.com/blockberries/walletrpc/server"
)

// Backend kinds.
const (
	BackendWallet = "wallet"
	BackendRemote = "remote"
	BackendMemory = "memory"
)

// Legacy environment variables, honoured for drop-in compatibility
// with existing deployments.
const (
	EnvPort           = "PORT"
	EnvSocket         = "NOCKCHAIN_SOCKET"
	EnvCommandTimeout = "COMMAND_TIMEOUT_SECS"
)

const (
	envPrefix       = "walletrpc"
	defaultHost     = "127.0.0.1"
	defaultPort     = 3000
	defaultMetrics  = "127.0.0.1:9464"
	defaultHealth   = 10 * time.Second
	defaultFileName = "walletrpc"
)

// Config is the walletrpcd configuration.
type Config struct {
	RPC     RPCConfig      `mapstructure:"rpc"`
	Node    NodeConfig     `mapstructure:"node"`
	Log     wlog.Config    `mapstructure:"log"`
	Metrics metrics.Config `mapstructure:"metrics"`
}

// RPCConfig is the public listener.
type RPCConfig struct {
	Address string `mapstructure:"address"`
}

// NodeConfig selects and tunes the balance backend.
type NodeConfig struct {
	// Backend is one of wallet, remote or memory.
	Backend string `mapstructure:"backend"`
	// Socket is the node socket used by the wallet backend.
	Socket string `mapstructure:"socket"`
	// Wallet is the wallet executable.
	Wallet string `mapstructure:"wallet"`
	// Remote is the gRPC target of a BalanceSource sidecar.
	Remote string `mapstructure:"remote"`
	// Ledger is an optional ledger file for the memory backend.
	Ledger string `mapstructure:"ledger"`

	RequestTimeout         time.Duration `mapstructure:"request_timeout"`
	MaxConsecutiveTimeouts int           `mapstructure:"max_consecutive_timeouts"`
	MaxInFlight            int64         `mapstructure:"max_in_flight"`
	HealthInterval         time.Duration `mapstructure:"health_interval"`
}

// LoadOptions locates optional inputs.
type LoadOptions struct {
	// File is an explicit config file. When empty, walletrpc.{yaml,
	// toml,json} is searched in the working directory and
	// $HOME/.walletrpc, and a missing file is not an error.
	File string
	// DotEnv is a .env file whose variables are used where the
	// process environment does not set them. Missing is not an error.
	DotEnv string
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	lc := wlog.DefaultConfig()
	v.SetDefault("rpc.address", net.JoinHostPort(defaultHost, strconv.Itoa(defaultPort)))
	v.SetDefault("node.backend", BackendWallet)
	v.SetDefault("node.socket", "")
	v.SetDefault("node.wallet", "nockchain-wallet")
	v.SetDefault("node.remote", "")
	v.SetDefault("node.ledger", "")
	v.SetDefault("node.request_timeout", server.DefaultRequestTimeout)
	v.SetDefault("node.max_consecutive_timeouts", node.DefaultMaxConsecutiveTimeouts)
	v.SetDefault("node.max_in_flight", 0)
	v.SetDefault("node.health_interval", defaultHealth)
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.encoding", lc.Encoding)
	v.SetDefault("log.file.path", lc.File.Path)
	v.SetDefault("log.file.max_size_mb", lc.File.MaxSizeMB)
	v.SetDefault("log.file.max_backups", lc.File.MaxBackups)
	v.SetDefault("log.file.max_age_days", lc.File.MaxAgeDays)
	v.SetDefault("log.file.compress", lc.File.Compress)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", defaultMetrics)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the configuration into v and decodes it. Precedence, high
// to low: flags bound to v, WALLETRPC_* variables, the config file,
// legacy variables, built-in defaults. Entries of the .env file stand
// in for unset environment variables but never beat the config file.
func Load(v *viper.Viper, opts LoadOptions) (Config, error) {
	SetDefaults(v)

	dotenv, err := readDotEnv(opts.DotEnv)
	if err != nil {
		return Config{}, err
	}
	lookup := func(name string) (string, bool) {
		if val, ok := os.LookupEnv(name); ok {
			return val, true
		}
		val, ok := dotenv[strings.ToLower(name)]
		return val, ok
	}
	if err := applyLegacy(v, lookup); err != nil {
		return Config{}, err
	}
	// WALLETRPC_* entries of the .env file sit below the real
	// environment.
	for _, key := range v.AllKeys() {
		if val, ok := dotenv[envPrefix+"_"+strings.ReplaceAll(key, ".", "_")]; ok {
			v.SetDefault(key, val)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, opts.File); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", file, err)
		}
		return nil
	}
	v.SetConfigName(defaultFileName)
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + string(os.PathSeparator) + ".walletrpc")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// readDotEnv parses a .env file with viper. Keys come back lower-cased.
func readDotEnv(path string) (map[string]string, error) {
	out := make(map[string]string)
	if path == "" {
		return out, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	for k, val := range dv.AllSettings() {
		out[strings.ToLower(k)] = fmt.Sprint(val)
	}
	return out, nil
}

// applyLegacy maps the legacy variables onto defaults, so that any
// explicit setting wins over them.
func applyLegacy(v *viper.Viper, lookup func(string) (string, bool)) error {
	if val, ok := lookup(EnvPort); ok && val != "" {
		port, err := strconv.ParseUint(val, 10, 16)
		if err != nil || port == 0 {
			return fmt.Errorf("config: invalid %s %q", EnvPort, val)
		}
		v.SetDefault("rpc.address", net.JoinHostPort(defaultHost, val))
	}
	if val, ok := lookup(EnvSocket); ok && val != "" {
		v.SetDefault("node.socket", val)
	}
	if val, ok := lookup(EnvCommandTimeout); ok && val != "" {
		secs, err := strconv.ParseUint(val, 10, 32)
		if err != nil || secs == 0 {
			return fmt.Errorf("config: invalid %s %q", EnvCommandTimeout, val)
		}
		v.SetDefault("node.request_timeout", time.Duration(secs)*time.Second)
	}
	return nil
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	if err := validateAddress("rpc.address", c.RPC.Address); err != nil {
		return err
	}

	n := c.Node
	switch n.Backend {
	case BackendWallet:
		if n.Socket == "" {
			return fmt.Errorf("config: node.socket (or %s) is required for the wallet backend", EnvSocket)
		}
	case BackendRemote:
		if n.Remote == "" {
			return errors.New("config: node.remote is required for the remote backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown node.backend %q (want %s, %s or %s)",
			n.Backend, BackendWallet, BackendRemote, BackendMemory)
	}
	if n.RequestTimeout <= 0 {
		return fmt.Errorf("config: node.request_timeout must be positive, got %s", n.RequestTimeout)
	}
	if n.MaxInFlight < 0 {
		return fmt.Errorf("config: node.max_in_flight must not be negative, got %d", n.MaxInFlight)
	}
	if n.HealthInterval <= 0 {
		return fmt.Errorf("config: node.health_interval must be positive, got %s", n.HealthInterval)
	}

	if _, err := wlog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Log.Encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unknown log.encoding %q", c.Log.Encoding)
	}

	if c.Metrics.Enabled {
		if err := validateAddress("metrics.address", c.Metrics.Address); err != nil {
			return err
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("config: metrics.path %q must start with /", c.Metrics.Path)
		}
	}
	return nil
}

func validateAddress(name, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("config: %s %q: %w", name, addr, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("config: %s %q: invalid port", name, addr)
	}
	return nil
}
