package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fisaks/flowctl/internal/codec"
	"github.com/fisaks/flowctl/internal/device"
	"gopkg.in/yaml.v3"
)

// DeviceConfig is the per-device serial settings file (gfr.yaml, relay.yaml).
type DeviceConfig struct {
	BaudRate  int     `yaml:"baudrate"`
	Parity    string  `yaml:"parity"`
	DataBits  int     `yaml:"data_bit"`
	StopBits  int     `yaml:"stop_bit"`
	SlaveID   int     `yaml:"slave_id"`
	TimeoutMs int     `yaml:"timeout"`
	FlowScale float64 `yaml:"flow_scale,omitempty"`
	Debug     bool    `yaml:"debug,omitempty"`
}

type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return "configuration file not found: " + e.Path }

type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid configuration file %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// DeviceDefaults turns the built-in serial settings of a device into a config.
func DeviceDefaults(p device.SerialParams) DeviceConfig {
	return DeviceConfig{
		BaudRate:  p.BaudRate,
		Parity:    p.Parity,
		DataBits:  p.DataBits,
		StopBits:  p.StopBits,
		SlaveID:   int(p.SlaveID),
		TimeoutMs: int(p.Timeout / time.Millisecond),
	}
}

func FlowRegulatorDefaults() DeviceConfig {
	c := DeviceDefaults(device.FlowRegulatorDefaults)
	c.FlowScale = codec.FlowScale
	return c
}

func RelayDefaults() DeviceConfig { return DeviceDefaults(device.RelayDefaults) }

// LoadDevice reads path on top of defaults. Keys missing from the file keep
// their default value.
func LoadDevice(path string, defaults DeviceConfig) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := ParseDevice(raw, defaults)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	return cfg, nil
}

func ParseDevice(raw []byte, defaults DeviceConfig) (*DeviceConfig, error) {
	cfg := defaults
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveDevice writes cfg as YAML, creating parent directories as needed.
func SaveDevice(path string, cfg *DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate normalizes parity and checks every field.
func (c *DeviceConfig) Validate() error {
	var errs multiErr

	c.Parity = strings.ToUpper(strings.TrimSpace(c.Parity))
	if c.BaudRate <= 0 {
		errs.add("baudrate must be > 0")
	}
	if !slices.Contains([]string{"N", "E", "O"}, c.Parity) {
		errs.addf("parity must be one of N,E,O (got %q)", c.Parity)
	}
	if c.DataBits != 7 && c.DataBits != 8 {
		errs.addf("data_bit must be 7 or 8 (got %d)", c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		errs.addf("stop_bit must be 1 or 2 (got %d)", c.StopBits)
	}
	if c.SlaveID < 1 || c.SlaveID > 247 {
		errs.addf("slave_id must be 1..247 (got %d)", c.SlaveID)
	}
	if c.TimeoutMs <= 0 {
		errs.add("timeout must be > 0 ms")
	}
	if c.FlowScale < 0 {
		errs.add("flow_scale cannot be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c DeviceConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

// SerialParams combines the file settings with the chosen port.
func (c DeviceConfig) SerialParams(port string) device.SerialParams {
	return device.SerialParams{
		Port:     port,
		BaudRate: c.BaudRate,
		Parity:   c.Parity,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		SlaveID:  byte(c.SlaveID),
		Timeout:  c.Timeout(),
		Debug:    c.Debug,
	}
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
