package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the remoteio daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Cloud   CloudConfig   `yaml:"cloud"`
	Timing  TimingConfig  `yaml:"timing"`
	WiFi    WiFiConfig    `yaml:"wifi"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Anchor  AnchorConfig  `yaml:"anchor"`
	Clock   ClockConfig   `yaml:"clock"`
	Store   StoreConfig   `yaml:"store"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// DeviceConfig describes the device identity reported to the cloud.
type DeviceConfig struct {
	// Model is reported to the cloud on verification and used as the
	// model for freshly provisioned credentials.
	Model string `yaml:"model"`

	// Version is the software version reported on verification.
	Version string `yaml:"version"`

	// ResetHold is how long the pin of the "reset" reference must be held
	// low before credentials are erased. Zero disables the check.
	ResetHold time.Duration `yaml:"reset_hold"`

	// RebootDelay is the grace period between a reboot request and the
	// reboot itself, so in-flight responses are flushed.
	RebootDelay time.Duration `yaml:"reboot_delay"`
}

// CloudConfig contains the management cloud endpoints.
type CloudConfig struct {
	BaseURL        string        `yaml:"base_url"`
	SocketPort     int           `yaml:"socket_port"`
	SocketTLS      bool          `yaml:"socket_tls"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Insecure skips TLS verification, matching devices without a CA bundle.
	Insecure bool `yaml:"insecure"`
}

// TimingConfig holds every timer used by the connection lifecycle.
type TimingConfig struct {
	Cycle                time.Duration `yaml:"cycle"`
	Debounce             time.Duration `yaml:"debounce"`
	NoWiFiRetry          time.Duration `yaml:"no_wifi_retry"`
	DisconnectedRetry    time.Duration `yaml:"disconnected_retry"`
	Browse               time.Duration `yaml:"browse"`
	JoinRetry            time.Duration `yaml:"join_retry"`
	MaxReconnectFailures int           `yaml:"max_reconnect_failures"`
	FirstAssociation     time.Duration `yaml:"first_association"`
	BootAssociation      time.Duration `yaml:"boot_association"`
	LinkPoll             time.Duration `yaml:"link_poll"`
	AuthRetry            time.Duration `yaml:"auth_retry"`
	// LocalFallbackMaxAge bounds how old persisted settings may be before
	// local mode refuses them. Zero means no bound.
	LocalFallbackMaxAge time.Duration `yaml:"local_fallback_max_age"`
}

// WiFiConfig contains network link settings.
type WiFiConfig struct {
	Interface     string `yaml:"interface"`
	AccessPointID string `yaml:"access_point_ssid"`
}

// GPIOConfig contains the GPIO character device to use.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
}

// AnchorConfig contains peer anchoring settings.
type AnchorConfig struct {
	Service  string        `yaml:"service"`
	Domain   string        `yaml:"domain"`
	Patterns []string      `yaml:"patterns"`
	PeerPort int           `yaml:"peer_port"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ClockConfig contains wall-clock synchronisation settings.
type ClockConfig struct {
	Servers []string      `yaml:"servers"`
	Resync  time.Duration `yaml:"resync"`
}

// StoreConfig contains durable storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains the optional local status mirror broker.
// An empty Broker disables the mirror.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Buffer   int    `yaml:"buffer"`
}

// HTTPConfig contains the local HTTP server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides and validates the result.
//
// Environment variables follow the pattern REMOTEIO_SECTION_KEY,
// for example REMOTEIO_STORE_PATH or REMOTEIO_MQTT_BROKER.
// An empty path skips the file and returns defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the stock timings.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Model:       "remoteio-linux",
			Version:     "1.2.2",
			ResetHold:   5 * time.Second,
			RebootDelay: time.Second,
		},
		Cloud: CloudConfig{
			BaseURL:        "https://api.nodeiot.app.br/api",
			SocketPort:     5000,
			RequestTimeout: 10 * time.Second,
		},
		Timing: TimingConfig{
			Cycle:                50 * time.Millisecond,
			Debounce:             2 * time.Second,
			NoWiFiRetry:          10 * time.Second,
			DisconnectedRetry:    60 * time.Second,
			Browse:               5 * time.Second,
			JoinRetry:            2 * time.Second,
			MaxReconnectFailures: 3,
			FirstAssociation:     5 * time.Second,
			BootAssociation:      30 * time.Second,
			LinkPoll:             500 * time.Millisecond,
			AuthRetry:            250 * time.Millisecond,
			LocalFallbackMaxAge:  7 * 24 * time.Hour,
		},
		WiFi: WiFiConfig{
			Interface:     "wlan0",
			AccessPointID: "RemoteIO",
		},
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
		},
		Anchor: AnchorConfig{
			Service:  "_http._tcp",
			Domain:   "local.",
			Patterns: []string{"niot", "esp32", "esp8266"},
			PeerPort: 80,
			Timeout:  2 * time.Second,
		},
		Clock: ClockConfig{
			Servers: []string{"pool.ntp.org", "time.nist.gov"},
			Resync:  time.Hour,
		},
		Store: StoreConfig{
			Path: "/var/lib/remoteio/remoteio.db",
		},
		MQTT: MQTTConfig{
			ClientID: "remoteio",
			Buffer:   100,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMOTEIO_CLOUD_BASE_URL"); v != "" {
		cfg.Cloud.BaseURL = v
	}
	if v := os.Getenv("REMOTEIO_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("REMOTEIO_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("REMOTEIO_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("REMOTEIO_WIFI_INTERFACE"); v != "" {
		cfg.WiFi.Interface = v
	}
	if v := os.Getenv("REMOTEIO_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.SocketPort < 1 || c.Cloud.SocketPort > 65535 {
		errs = append(errs, "cloud.socket_port must be between 1 and 65535")
	}
	if c.Timing.Cycle <= 0 {
		errs = append(errs, "timing.cycle must be positive")
	}
	if c.Timing.Debounce <= 0 {
		errs = append(errs, "timing.debounce must be positive")
	}
	if c.Timing.NoWiFiRetry <= 0 || c.Timing.DisconnectedRetry <= 0 || c.Timing.Browse <= 0 {
		errs = append(errs, "timing retry intervals must be positive")
	}
	if c.Timing.MaxReconnectFailures < 1 {
		errs = append(errs, "timing.max_reconnect_failures must be at least 1")
	}
	if c.Timing.LocalFallbackMaxAge < 0 {
		errs = append(errs, "timing.local_fallback_max_age must not be negative")
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if len(c.Anchor.Patterns) == 0 {
		errs = append(errs, "anchor.patterns must not be empty")
	}
	if c.MQTT.Broker != "" && c.MQTT.Buffer < 1 {
		errs = append(errs, "mqtt.buffer must be at least 1 when a broker is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
