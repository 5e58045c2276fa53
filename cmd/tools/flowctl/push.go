package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fisaks/flowctl/internal/mqtt"
	"github.com/fisaks/flowctl/internal/telemetry"
	"github.com/spf13/cobra"
)

// pushCmd represents the push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send a command to a running station over MQTT",
	Long: `Publish one command message to a station. Without --device the command
goes to the station itself (open, close, resync).

Example usage:
  flowctl push --station flowctl/station1 --device gfr --action setflow --value 30.5
  flowctl push --station flowctl/station1 --device relay --action turnoff
  flowctl push --station flowctl/station1 --action resync`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		broker, _ := cmd.Flags().GetString("broker")
		prefix, _ := cmd.Flags().GetString("station")
		dev, _ := cmd.Flags().GetString("device")
		action, _ := cmd.Flags().GetString("action")
		value, _ := cmd.Flags().GetString("value")
		id, _ := cmd.Flags().GetString("id")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		command := buildCommand(id, dev, action, value)

		client, err := mqtt.Connect(broker, "flowctl", timeout)
		if err != nil {
			fatalf("%v", err)
		}
		defer client.Disconnect(250)

		topic, err := mqtt.PublishCommand(client, prefix, command, timeout)
		if err != nil {
			client.Disconnect(250)
			fatalf("%v", err)
		}
		fmt.Printf("Published %s to %s\n", command.Action, topic)
	},
}

// buildCommand sends numeric values as JSON numbers and anything else as
// a string for the station to reject or parse.
func buildCommand(id, dev, action, value string) telemetry.IncomingCommand {
	c := telemetry.IncomingCommand{ID: id, Device: dev, Action: action}
	if value == "" {
		return c
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		c.Value = f
	} else {
		c.Value = value
	}
	return c
}

func init() {
	f := pushCmd.Flags()
	f.String("broker", "tcp://localhost:1883", "MQTT broker address")
	f.String("station", "flowctl/station1", "topic prefix of the station")
	f.String("device", "", "gfr or relay; empty targets the station")
	f.String("action", "", "command action")
	f.String("value", "", "command value")
	f.String("id", "", "correlation id echoed in the station logs")
	f.Duration("timeout", 5*time.Second, "connect and publish timeout")
	_ = pushCmd.MarkFlagRequired("action")

	rootCmd.AddCommand(pushCmd)
}
