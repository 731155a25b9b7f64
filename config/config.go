// Package config loads client and server settings from a YAML file, .env
// files and MINIJSONRPC_* environment variables, in that order of precedence
// (environment wins).
//
//	endpoint: http://127.0.0.1:8080/rpc
//	transport: http            # http | websocket | tcp
//	service: arith             # with etcd.endpoints: discover instead of dialing endpoint
//	etcd:
//	  endpoints: [127.0.0.1:2379]
//	balancer: round_robin      # round_robin | weighted_random | consistent_hash
//	max_request_body_size: 10 MiB
//	timeout: 5s
//	retry: {max_retries: 3, base_delay: 100ms}
//	rate_limit: {rps: 100, burst: 10}
//	pool_size: 4
//	log_level: info
package config

import (
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MINIJSONRPC_"

// Transport kinds.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
	TransportTCP       = "tcp"
)

// ByteSize is a size written either as a number of bytes or as a human
// string such as "10 MiB" or "512kB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := ParseByteSize(value.Value)
	if err != nil {
		return errors.Annotatef(err, "line %d", value.Line)
	}
	*b = n
	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return humanize.IBytes(uint64(b)), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// ParseByteSize accepts the forms ByteSize understands.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NotValidf("byte size %q", s)
	}
	if n > 1<<62 {
		return 0, errors.NotValidf("byte size %q (too large)", s)
	}
	return ByteSize(n), nil
}

type Etcd struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type Retry struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// RateLimit is disabled when RPS is 0.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Config struct {
	Endpoint           string        `yaml:"endpoint"`
	Transport          string        `yaml:"transport"`
	Service            string        `yaml:"service"`
	Etcd               Etcd          `yaml:"etcd"`
	Balancer           string        `yaml:"balancer"`
	MaxRequestBodySize ByteSize      `yaml:"max_request_body_size"`
	Timeout            time.Duration `yaml:"timeout"`
	Retry              Retry         `yaml:"retry"`
	RateLimit          RateLimit     `yaml:"rate_limit"`
	PoolSize           int           `yaml:"pool_size"`
	LogLevel           string        `yaml:"log_level"`
}

// Default returns the settings used for anything a file or the environment
// does not set.
func Default() *Config {
	return &Config{
		Transport:          TransportHTTP,
		Balancer:           "round_robin",
		MaxRequestBodySize: 10 * humanize.MiByte,
		Timeout:            30 * time.Second,
		Retry:              Retry{MaxRetries: 0, BaseDelay: 100 * time.Millisecond},
		PoolSize:           4,
		LogLevel:           "info",
		Etcd:               Etcd{DialTimeout: 5 * time.Second},
	}
}

// Load reads path (skipped when empty) over Default, then applies
// environment overrides. The result is not validated, so command line flags
// can still fill in what is missing; call Validate before use.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Annotatef(err, "parsing config %s", path)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments it loads ./.env.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Annotatef(err, "loading %s", f)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("ENDPOINT", &c.Endpoint)
	str("TRANSPORT", &c.Transport)
	str("SERVICE", &c.Service)
	str("BALANCER", &c.Balancer)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup(EnvPrefix + "ETCD_ENDPOINTS"); ok {
		c.Etcd.Endpoints = nil
		for _, ep := range strings.Split(v, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				c.Etcd.Endpoints = append(c.Etcd.Endpoints, ep)
			}
		}
	}
	if v, ok := lookup(EnvPrefix + "MAX_REQUEST_BODY_SIZE"); ok {
		n, err := ParseByteSize(v)
		if err != nil {
			return errors.Annotate(err, EnvPrefix+"MAX_REQUEST_BODY_SIZE")
		}
		c.MaxRequestBodySize = n
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.NotValidf("%sTIMEOUT %q", EnvPrefix, v)
		}
		c.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "POOL_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NotValidf("%sPOOL_SIZE %q", EnvPrefix, v)
		}
		c.PoolSize = n
	}
	return nil
}

// Discovery reports whether endpoints are resolved through etcd.
func (c *Config) Discovery() bool {
	return c.Service != "" && len(c.Etcd.Endpoints) > 0
}

// Validate rejects settings the client cannot be built from.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP, TransportWebSocket, TransportTCP:
	default:
		return errors.NotValidf("transport %q", c.Transport)
	}
	switch c.Balancer {
	case "", "round_robin", "weighted_random", "consistent_hash":
	default:
		return errors.NotValidf("balancer %q", c.Balancer)
	}
	if c.Endpoint == "" && !c.Discovery() {
		return errors.NotValidf("empty endpoint without service discovery")
	}
	if c.MaxRequestBodySize <= 0 {
		return errors.NotValidf("max_request_body_size %d", c.MaxRequestBodySize)
	}
	if c.Timeout < 0 || c.Retry.MaxRetries < 0 || c.Retry.BaseDelay < 0 {
		return errors.NotValidf("negative timeout or retry setting")
	}
	if c.RateLimit.RPS < 0 || (c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0) {
		return errors.NotValidf("rate_limit %v/%d", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	if c.PoolSize <= 0 {
		return errors.NotValidf("pool_size %d", c.PoolSize)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.NotValidf("log_level %q", c.LogLevel)
	}
	return nil
}

// Level returns the configured zerolog level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
