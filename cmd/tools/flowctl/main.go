package main

import (
	"os"

	"github.com/fisaks/flowctl/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "Control a gas flow regulator and its relay over Modbus",
	Long: `flowctl talks to the gas flow regulator and the relay directly over
Modbus RTU, writes device settings files, and sends commands to a running
station over MQTT.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		logging.Init(level, "text")
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
