// Package config loads the device client configuration from an optional YAML
// file and IOTDEVICE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. IOTDEVICE_HUB_DEVICE_ID.
const EnvPrefix = "IOTDEVICE"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full client configuration.
type Config struct {
	LogLevel     string             `mapstructure:"log_level"`
	Hub          HubConfig          `mapstructure:"hub"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	Health       HealthConfig       `mapstructure:"health"`
}

// HubConfig identifies the device on its hub. Hostname and DeviceID are
// filled in by provisioning when it is enabled.
type HubConfig struct {
	Hostname        string        `mapstructure:"hostname"`
	DeviceID        string        `mapstructure:"device_id"`
	ModuleID        string        `mapstructure:"module_id"`
	SharedAccessKey string        `mapstructure:"shared_access_key"`
	TokenLifetime   time.Duration `mapstructure:"token_lifetime"`
}

// ProvisioningConfig configures symmetric key registration with the
// provisioning service.
type ProvisioningConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	Endpoint       string         `mapstructure:"endpoint"`
	IDScope        string         `mapstructure:"id_scope"`
	RegistrationID string         `mapstructure:"registration_id"`
	SymmetricKey   string         `mapstructure:"symmetric_key"`
	Payload        map[string]any `mapstructure:"payload"`
	Timeout        time.Duration  `mapstructure:"timeout"`
}

// MQTTConfig holds connection settings shared by the hub and provisioning connections.
type MQTTConfig struct {
	Port                 int           `mapstructure:"port"`
	WebSocket            bool          `mapstructure:"websocket"`
	KeepAlive            time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
	QoS                  int           `mapstructure:"qos"`
}

// HealthConfig controls the periodic health report.
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// BrokerURL returns the MQTT broker URL for host.
func (m MQTTConfig) BrokerURL(host string) string {
	if m.WebSocket {
		return "wss://" + net.JoinHostPort(host, "443") + "/$iothub/websocket"
	}
	return "ssl://" + net.JoinHostPort(host, strconv.Itoa(m.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("hub.hostname", "")
	v.SetDefault("hub.device_id", "")
	v.SetDefault("hub.module_id", "")
	v.SetDefault("hub.shared_access_key", "")
	v.SetDefault("hub.token_lifetime", time.Hour)

	v.SetDefault("provisioning.enabled", false)
	v.SetDefault("provisioning.endpoint", "global.azure-devices-provisioning.net")
	v.SetDefault("provisioning.id_scope", "")
	v.SetDefault("provisioning.registration_id", "")
	v.SetDefault("provisioning.symmetric_key", "")
	v.SetDefault("provisioning.timeout", 2*time.Minute)

	v.SetDefault("mqtt.port", 8883)
	v.SetDefault("mqtt.websocket", false)
	v.SetDefault("mqtt.keep_alive", 60*time.Second)
	v.SetDefault("mqtt.connect_timeout", 30*time.Second)
	v.SetDefault("mqtt.max_reconnect_interval", 30*time.Second)
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("health.interval", 5*time.Minute)
}

// Load reads path, when not empty, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the fields the selected connection mode needs are set.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if c.Provisioning.Enabled {
		require("provisioning.endpoint", c.Provisioning.Endpoint)
		require("provisioning.id_scope", c.Provisioning.IDScope)
		require("provisioning.registration_id", c.Provisioning.RegistrationID)
		require("provisioning.symmetric_key", c.Provisioning.SymmetricKey)
	} else {
		require("hub.hostname", c.Hub.Hostname)
		require("hub.device_id", c.Hub.DeviceID)
		require("hub.shared_access_key", c.Hub.SharedAccessKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	if c.MQTT.QoS != 0 && c.MQTT.QoS != 1 {
		return fmt.Errorf("%w: mqtt.qos must be 0 or 1, got %d", ErrInvalid, c.MQTT.QoS)
	}
	if !c.MQTT.WebSocket && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return fmt.Errorf("%w: mqtt.port %d", ErrInvalid, c.MQTT.Port)
	}
	return nil
}
