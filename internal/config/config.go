// Package config holds the configuration of the grpcprobe command.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Aditya1404Sal/wasmcloud-grpc-client/types"
)

const (
	ModeGRPC    = "grpc"
	ModeConnect = "connect"
)

// Config is the probe configuration. Durations are written the way
// time.ParseDuration reads them, e.g. "1.5s".
type Config struct {
	// Endpoint is the base URI every probe is sent to.
	Endpoint string `yaml:"endpoint"`
	// Mode selects the client stack: "grpc" for the channel package, "connect"
	// for a connect-go client in gRPC protocol mode.
	Mode string `yaml:"mode"`
	// Services to check. The empty name asks for the server as a whole.
	Services []string `yaml:"services"`
	// Timeout bounds a single check.
	Timeout time.Duration `yaml:"timeout"`
	// Interval repeats the checks. Zero runs them once.
	Interval time.Duration `yaml:"interval"`
	// MetricsAddr serves /metrics when set.
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	Host HostConfig `yaml:"host"`
}

// HostConfig configures the outgoing HTTP host.
type HostConfig struct {
	AllowedAuthorities  []string      `yaml:"allowed_authorities"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	FirstByteTimeout    time.Duration `yaml:"first_byte_timeout"`
	BetweenBytesTimeout time.Duration `yaml:"between_bytes_timeout"`
	ChunkSize           int           `yaml:"chunk_size"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Endpoint: "http://localhost:50051",
		Mode:     ModeGRPC,
		Services: []string{""},
		Timeout:  5 * time.Second,
		LogLevel: "info",
		Host: HostConfig{
			ConnectTimeout: 2 * time.Second,
		},
	}
}

// LoadFromPath reads the YAML file at path over the defaults and validates
// the result.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Lists and zero-able durations are
// only taken when the key is present in the file.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	if override.Mode != "" {
		base.Mode = override.Mode
	}
	if fieldSet(raw, "services") {
		base.Services = override.Services
	}
	if override.Timeout != 0 {
		base.Timeout = override.Timeout
	}
	if fieldSet(raw, "interval") {
		base.Interval = override.Interval
	}
	if override.MetricsAddr != "" {
		base.MetricsAddr = override.MetricsAddr
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}

	if fieldSet(raw, "host", "allowed_authorities") {
		base.Host.AllowedAuthorities = override.Host.AllowedAuthorities
	}
	if fieldSet(raw, "host", "connect_timeout") {
		base.Host.ConnectTimeout = override.Host.ConnectTimeout
	}
	if fieldSet(raw, "host", "first_byte_timeout") {
		base.Host.FirstByteTimeout = override.Host.FirstByteTimeout
	}
	if fieldSet(raw, "host", "between_bytes_timeout") {
		base.Host.BetweenBytesTimeout = override.Host.BetweenBytesTimeout
	}
	if override.Host.ChunkSize != 0 {
		base.Host.ChunkSize = override.Host.ChunkSize
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	cur := raw
	for i, key := range path {
		v, ok := cur[key]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", c.Endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing authority", c.Endpoint)
	}

	switch strings.ToLower(c.Mode) {
	case ModeGRPC, ModeConnect:
	default:
		return fmt.Errorf("invalid mode: %s (valid: grpc, connect)", c.Mode)
	}

	if len(c.Services) == 0 {
		return fmt.Errorf("no services to check")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", c.Interval)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.Host.ConnectTimeout < 0 || c.Host.FirstByteTimeout < 0 || c.Host.BetweenBytesTimeout < 0 {
		return fmt.Errorf("host timeouts must not be negative")
	}
	if c.Host.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", c.Host.ChunkSize)
	}
	return nil
}

// RequestOptions returns the per-request host options.
func (c *Config) RequestOptions() types.RequestOptions {
	return types.RequestOptions{
		ConnectTimeout:      c.Host.ConnectTimeout,
		FirstByteTimeout:    c.Host.FirstByteTimeout,
		BetweenBytesTimeout: c.Host.BetweenBytesTimeout,
	}
}

// RegisterFlags defines one flag per setting on fs.
func RegisterFlags(fs *flag.FlagSet) {
	d := Default()
	fs.String("endpoint", d.Endpoint, "base URI of the gRPC server")
	fs.String("mode", d.Mode, "client stack: grpc or connect")
	fs.String("services", strings.Join(d.Services, ","), "comma-separated services to check")
	fs.Duration("timeout", d.Timeout, "timeout of a single check")
	fs.Duration("interval", d.Interval, "repeat the checks at this interval")
	fs.String("metrics-addr", d.MetricsAddr, "serve /metrics on this address")
	fs.String("log-level", d.LogLevel, "log level")
	fs.String("allowed-authorities", "", "comma-separated authorities the host may reach")
	fs.Duration("connect-timeout", d.Host.ConnectTimeout, "host connect timeout")
	fs.Duration("first-byte-timeout", d.Host.FirstByteTimeout, "host first byte timeout")
	fs.Duration("between-bytes-timeout", d.Host.BetweenBytesTimeout, "host between bytes timeout")
	fs.Int("chunk-size", d.Host.ChunkSize, "bytes moved per host body operation")
}

// ApplyFlags copies the flags that were set on the command line into c.
// Flags left at their default do not override the file.
func (c *Config) ApplyFlags(fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		v := f.Value.String()
		switch f.Name {
		case "endpoint":
			c.Endpoint = v
		case "mode":
			c.Mode = v
		case "services":
			c.Services = splitList(v)
			if len(c.Services) == 0 {
				c.Services = []string{""}
			}
		case "timeout":
			c.Timeout, err = time.ParseDuration(v)
		case "interval":
			c.Interval, err = time.ParseDuration(v)
		case "metrics-addr":
			c.MetricsAddr = v
		case "log-level":
			c.LogLevel = v
		case "allowed-authorities":
			c.Host.AllowedAuthorities = splitList(v)
		case "connect-timeout":
			c.Host.ConnectTimeout, err = time.ParseDuration(v)
		case "first-byte-timeout":
			c.Host.FirstByteTimeout, err = time.ParseDuration(v)
		case "between-bytes-timeout":
			c.Host.BetweenBytesTimeout, err = time.ParseDuration(v)
		case "chunk-size":
			c.Host.ChunkSize, err = strconv.Atoi(v)
		}
		if err != nil {
			err = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	return err
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
