// Package config loads and validates the storage-plane configuration (spec
// §6.4): storage backend selection, storage node hosts, replication and
// block sizing, worker cache settings, and proxy registration, following
// the same viper + mapstructure + validator layering used for every other
// ambient concern in this codebase.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/ssbd-io/blockplane/internal/bytesize"
)

// StorageType selects the storage-node backend a worker talks to.
type StorageType string

const (
	StorageSSBD      StorageType = "ssbd"
	StorageCassandra StorageType = "cassandra"
	StorageSwift     StorageType = "swift"
)

// Host is one storage node entry under "hosts" (spec §6.4).
type Host struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required,gt=0,lte=65535"`
}

// Config is the complete worker/storage-node configuration, loaded from a
// file, environment variables, and defaults (see Load for precedence).
type Config struct {
	// StorageType selects the storage backend; only StorageSSBD is part
	// of the core (spec §6.4: "only ssbd is part of the core").
	StorageType StorageType `mapstructure:"storage_type" validate:"required,oneof=ssbd cassandra swift"`

	// Hosts are the storage nodes available for striping.
	Hosts []Host `mapstructure:"hosts" validate:"required,min=1,dive"`

	// ReplicationSize is the number of replicas per block.
	ReplicationSize uint `mapstructure:"replication_size" validate:"required,gte=1"`

	// BlockSize is the number of bytes per block; it must match the
	// storage node's configured fullsize minus its header reservation.
	// Accepts a plain integer or a human-readable size ("4Ki", "4096").
	BlockSize bytesize.ByteSize `mapstructure:"block_size" validate:"required,gt=0"`

	// CacheEnabled turns on the worker-side partial-range cache (§4.5).
	CacheEnabled bool `mapstructure:"cache_enabled"`

	// CacheSize is the byte budget that triggers eviction. Accepts a plain
	// integer or a human-readable size ("64Mi", "64MB").
	CacheSize bytesize.ByteSize `mapstructure:"cache_size" validate:"omitempty,gt=0"`

	// CachePolicy selects the eviction policy.
	CachePolicy string `mapstructure:"cache_policy" validate:"omitempty,oneof=LRU FIFO NONE"`

	// ProxyHost/ProxyPort is where the worker registers its control
	// channel (spec §4.8).
	ProxyHost string `mapstructure:"proxy_host" validate:"required"`
	ProxyPort int    `mapstructure:"proxy_port" validate:"required,gt=0,lte=65535"`

	// IdleTimeoutMS is the default keepalive deadline, in milliseconds.
	// cmd/worker does not pass it to the control channel, which starts
	// from control.DefaultDeadline until the proxy sends its first SetTimer.
	IdleTimeoutMS uint `mapstructure:"idle_timeout_ms"`

	// ListenHost/ListenPort are where this process's own server listens
	// (storage node's dialect-B server, or a worker's dialect-A server).
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port" validate:"omitempty,gt=0,lte=65535"`

	// DataDir is the on-disk path for the badger-backed storage-node
	// block store.
	DataDir string `mapstructure:"data_dir"`

	// Logging controls the ambient logger (not described by the storage
	// model itself, but present in every deployment).
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig mirrors internal/logger.Config's knobs so they can be set
// from the same configuration source.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	Output string `mapstructure:"output"`
}

// IdleTimeout returns IdleTimeoutMS as a time.Duration, defaulting to 30s
// when unset (matching control.DefaultDeadline).
func (c *Config) IdleTimeout() time.Duration {
	if c.IdleTimeoutMS == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

// HostAddrs renders Hosts as "host:port" strings, the form worker/io.Config
// expects.
func (c *Config) HostAddrs() []string {
	addrs := make([]string, len(c.Hosts))
	for i, h := range c.Hosts {
		addrs[i] = fmt.Sprintf("%s:%d", h.Host, h.Port)
	}
	return addrs
}

// defaults applied to any field viper did not populate.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("storage_type", string(StorageSSBD))
	v.SetDefault("replication_size", 1)
	v.SetDefault("block_size", 4096)
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_size", 64<<20)
	v.SetDefault("cache_policy", "LRU")
	v.SetDefault("idle_timeout_ms", 30000)
	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from configPath (if non-empty), environment
// variables prefixed BLOCKPLANE_, and defaults, then validates the result.
// Environment variables override the file, which overrides the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("BLOCKPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
