package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/hilo-software/strip-control/internal/kasa"
	"github.com/hilo-software/strip-control/internal/logger"
)

// Config holds the settings shared by the strip-control binaries.
type Config struct {
	// Devices statically binds aliases to device addresses, bypassing discovery.
	Devices []Device `yaml:"devices" ignored:"true"`
	// Timeout bounds every request sent to a device.
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// Discovery controls the UDP broadcast lookup used for unknown aliases.
	Discovery Discovery `yaml:"discovery" envconfig:"DISCOVERY"`
	// LogFile is the path of the rotating log file, empty for console only.
	LogFile string `yaml:"log_file" envconfig:"LOG_FILE"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	// MetricsFile is where run metrics are written in Prometheus text format.
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// Device is a static alias to address binding.
type Device struct {
	// Alias is the device or plug name as shown in the Kasa app.
	Alias string `yaml:"alias"`
	// Host is an IP or hostname, optionally with a port.
	Host string `yaml:"host"`
}

// Discovery holds the broadcast lookup settings.
type Discovery struct {
	// Disabled turns discovery off so only static devices are used.
	Disabled bool `yaml:"disabled" envconfig:"DISABLED"`
	// BroadcastAddress is where the probe datagram is sent.
	BroadcastAddress string `yaml:"broadcast_address" envconfig:"BROADCAST_ADDRESS"`
	// Timeout is how long replies are collected.
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

const (
	// DefaultConfigFilename is the settings file looked up when no path is given.
	DefaultConfigFilename = "strip-control.yaml"

	// EnvPrefix prefixes the environment variables overriding the YAML values.
	EnvPrefix = "STRIPCTL"

	// DefaultTimeout is the default duration for device requests.
	DefaultTimeout = 5 * time.Second

	// DefaultDiscoveryTimeout is how long discovery waits for replies by default.
	DefaultDiscoveryTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// DefaultBroadcastAddress is the limited broadcast address on the Kasa port.
//
//nolint:gochecknoglobals // Derived from the protocol port, effectively a constant.
var DefaultBroadcastAddress = net.JoinHostPort("255.255.255.255", strconv.Itoa(kasa.DefaultPort))

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errDeviceAliasRequired is returned for a static device without alias.
	errDeviceAliasRequired = errors.New("device alias must be provided")
	// errDeviceHostRequired is returned for a static device without host.
	errDeviceHostRequired = errors.New("device host must be provided")
	// errDuplicateAlias is returned when two static devices share an alias.
	errDuplicateAlias = errors.New("duplicate device alias")
	// errInvalidLogLevel is returned for an unknown log level name.
	errInvalidLogLevel = errors.New("invalid log level")
)

// Load reads configuration from the provided path, applies STRIPCTL_*
// environment overrides and validates the result.
//
// An empty path means DefaultConfigFilename, which may be absent: the tool
// then runs on defaults and discovery alone. An explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	// Environment wins over the file, which is handy for cron entries.
	if err = envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("read environment overrides: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the static devices and fills defaults for unset values.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	seen := make(map[string]struct{}, len(settings.Devices))

	for i, device := range settings.Devices {
		if device.Alias == "" {
			return fmt.Errorf("device #%d: %w", i+1, errDeviceAliasRequired)
		}

		if device.Host == "" {
			return fmt.Errorf("device %q: %w", device.Alias, errDeviceHostRequired)
		}

		if _, err := kasa.NormalizeAddress(device.Host); err != nil {
			return fmt.Errorf("device %q: %w", device.Alias, err)
		}

		if _, found := seen[device.Alias]; found {
			return fmt.Errorf("%w: %q", errDuplicateAlias, device.Alias)
		}

		seen[device.Alias] = struct{}{}
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, settings.LogLevel)
	}

	// Set default timeouts if not specified.
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.Discovery.Timeout <= 0 {
		settings.Discovery.Timeout = DefaultDiscoveryTimeout
	}

	if settings.Discovery.BroadcastAddress == "" {
		settings.Discovery.BroadcastAddress = DefaultBroadcastAddress
	}

	if _, _, err := net.SplitHostPort(settings.Discovery.BroadcastAddress); err != nil {
		return fmt.Errorf("invalid broadcast address: %w", err)
	}

	return nil
}

// LookupDevice returns the static binding for alias. Aliases match exactly,
// the same way the Kasa app compares them.
func (c *Config) LookupDevice(alias string) (Device, bool) {
	for _, device := range c.Devices {
		if device.Alias == alias {
			return device, true
		}
	}

	return Device{}, false
}
