package main

import (
	"fmt"
	"os"

	"github.com/fisaks/flowctl/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect device settings files",
	Long: `Device settings files hold the serial parameters of one device.

Example usage:
  flowctl config init gfr /etc/flowctl/gfr.yaml --baudrate 19200
  flowctl config show relay /etc/flowctl/relay.yaml
  flowctl config show gfr`,
}

var configInitCmd = &cobra.Command{
	Use:   "init <gfr|relay> <path>",
	Short: "Write the built-in defaults to a settings file",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		defaults, err := defaultsFor(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(args[1]); err == nil && !force {
			fatalf("%s already exists, use --force to overwrite", args[1])
		}
		cfg := applyOverrides(cmd, defaults)
		if err := config.SaveDevice(args[1], &cfg); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Wrote %s settings to %s\n", args[0], args[1])
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <gfr|relay> [path]",
	Short: "Print the effective settings",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		defaults, err := defaultsFor(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		cfg := &defaults
		if len(args) == 2 {
			if cfg, err = config.LoadDevice(args[1], defaults); err != nil {
				fatalf("%v", err)
			}
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Print(string(out))
	},
}

func defaultsFor(kind string) (config.DeviceConfig, error) {
	switch kind {
	case "gfr":
		return config.FlowRegulatorDefaults(), nil
	case "relay":
		return config.RelayDefaults(), nil
	}
	return config.DeviceConfig{}, fmt.Errorf("unknown device %q, expected gfr or relay", kind)
}

// applyOverrides copies the flags the user set onto cfg.
func applyOverrides(cmd *cobra.Command, cfg config.DeviceConfig) config.DeviceConfig {
	f := cmd.Flags()
	if f.Changed("baudrate") {
		cfg.BaudRate, _ = f.GetInt("baudrate")
	}
	if f.Changed("parity") {
		cfg.Parity, _ = f.GetString("parity")
	}
	if f.Changed("data-bits") {
		cfg.DataBits, _ = f.GetInt("data-bits")
	}
	if f.Changed("stop-bits") {
		cfg.StopBits, _ = f.GetInt("stop-bits")
	}
	if f.Changed("slave-id") {
		cfg.SlaveID, _ = f.GetInt("slave-id")
	}
	if f.Changed("timeout-ms") {
		cfg.TimeoutMs, _ = f.GetInt("timeout-ms")
	}
	if f.Changed("flow-scale") {
		cfg.FlowScale, _ = f.GetFloat64("flow-scale")
	}
	return cfg
}

func init() {
	f := configInitCmd.Flags()
	f.Bool("force", false, "overwrite an existing file")
	f.Int("baudrate", 0, "baud rate")
	f.String("parity", "", "N, E or O")
	f.Int("data-bits", 0, "7 or 8")
	f.Int("stop-bits", 0, "1 or 2")
	f.Int("slave-id", 0, "modbus slave id (1..247)")
	f.Int("timeout-ms", 0, "response timeout in milliseconds")
	f.Float64("flow-scale", 0, "flow register scale (gfr only)")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
