package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StationConfig is the service configuration of the station daemon.
type StationConfig struct {
	Name               string          `mapstructure:"name"`
	Log                LogConfig       `mapstructure:"log"`
	MQTT               MQTTConfig      `mapstructure:"mqtt"`
	Metrics            MetricsConfig   `mapstructure:"metrics"`
	PollIntervalMs     int             `mapstructure:"poll_interval_ms"`
	HeartbeatIntervalS int             `mapstructure:"heartbeat_interval_s"`
	CommandBufferSize  int             `mapstructure:"command_buffer_size"`
	OpenOnStart        bool            `mapstructure:"open_on_start"`
	Reconnect          ReconnectConfig `mapstructure:"reconnect"`
	Devices            DevicesConfig   `mapstructure:"devices"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	ClientName  string `mapstructure:"client_name"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the endpoint
}

// ReconnectConfig controls reopening a link that a failed operation dropped.
type ReconnectConfig struct {
	Enabled bool `mapstructure:"enabled"`
	MinMs   int  `mapstructure:"min_ms"`
	MaxMs   int  `mapstructure:"max_ms"`
}

type DevicesConfig struct {
	GFR   LinkConfig `mapstructure:"gfr"`
	Relay LinkConfig `mapstructure:"relay"`
}

// LinkConfig says where a device is attached and which settings file it uses.
type LinkConfig struct {
	Port      string `mapstructure:"port"`
	Transport string `mapstructure:"transport"` // "rtu" | "tcp"
	Config    string `mapstructure:"config"`    // device YAML; empty means built-in defaults
}

// LoadDevice reads the settings file the link points to, or validates
// defaults when it names none.
func (l LinkConfig) LoadDevice(defaults DeviceConfig) (*DeviceConfig, error) {
	if strings.TrimSpace(l.Config) == "" {
		cfg := defaults
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return LoadDevice(l.Config, defaults)
}

func (c StationConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c StationConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalS) * time.Second
}

func (r ReconnectConfig) Min() time.Duration { return time.Duration(r.MinMs) * time.Millisecond }
func (r ReconnectConfig) Max() time.Duration { return time.Duration(r.MaxMs) * time.Millisecond }

func setStationDefaults(v *viper.Viper) {
	v.SetDefault("name", "station1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_name", "")
	v.SetDefault("mqtt.topic_prefix", "")
	v.SetDefault("metrics.listen", ":9108")
	v.SetDefault("poll_interval_ms", 500)
	v.SetDefault("heartbeat_interval_s", 60)
	v.SetDefault("command_buffer_size", 16)
	v.SetDefault("open_on_start", true)
	v.SetDefault("reconnect.enabled", false)
	v.SetDefault("reconnect.min_ms", 1000)
	v.SetDefault("reconnect.max_ms", 30000)
	v.SetDefault("devices.gfr.transport", "rtu")
	v.SetDefault("devices.gfr.port", "")
	v.SetDefault("devices.gfr.config", "")
	v.SetDefault("devices.relay.transport", "rtu")
	v.SetDefault("devices.relay.port", "")
	v.SetDefault("devices.relay.config", "")
}

// LoadStation reads the station config. With an empty path the usual
// locations are searched and a missing file is not an error. Every key can
// be overridden from the environment as FLOWCTL_<KEY>, e.g.
// FLOWCTL_DEVICES_GFR_PORT.
func LoadStation(path string) (*StationConfig, error) {
	v := viper.New()
	setStationDefaults(v)
	v.SetEnvPrefix("flowctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("station")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/flowctl/")
		v.AddConfigPath("$HOME/.flowctl")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg StationConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate fills derived defaults and reports every problem at once.
func (c *StationConfig) Validate() error {
	var errs multiErr

	if strings.TrimSpace(c.Name) == "" {
		errs.add("name is required")
	}
	if c.PollIntervalMs <= 0 {
		errs.add("poll_interval_ms must be > 0 (e.g., 500)")
	}
	if c.HeartbeatIntervalS < 0 {
		c.HeartbeatIntervalS = 60
	}
	if c.CommandBufferSize <= 0 {
		c.CommandBufferSize = 16
	}
	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.URL) == "" {
			errs.add("mqtt.url is required when mqtt is enabled")
		}
		if c.MQTT.ClientName == "" {
			c.MQTT.ClientName = c.Name
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "flowctl/" + c.Name
		}
		c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
	}
	if c.Reconnect.Enabled {
		if c.Reconnect.MinMs <= 0 {
			c.Reconnect.MinMs = 1000
		}
		if c.Reconnect.MaxMs < c.Reconnect.MinMs {
			errs.add("reconnect.max_ms must be >= reconnect.min_ms")
		}
	}
	validateLink(&errs, "devices.gfr", &c.Devices.GFR)
	validateLink(&errs, "devices.relay", &c.Devices.Relay)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateLink(errs *multiErr, key string, l *LinkConfig) {
	l.Transport = strings.ToLower(strings.TrimSpace(l.Transport))
	if l.Transport == "" {
		l.Transport = "rtu"
	}
	if l.Transport != "rtu" && l.Transport != "tcp" {
		errs.addf("%s.transport must be 'rtu' or 'tcp'", key)
	}
	if strings.TrimSpace(l.Port) == "" {
		errs.addf("%s.port is required", key)
	}
}
