package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/fisaks/flowctl/internal/catalog"
	"github.com/fisaks/flowctl/internal/mqtt"
	"github.com/fisaks/flowctl/internal/telemetry"
	"github.com/spf13/cobra"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print station traffic until interrupted",
	Long: `Subscribe to a topic filter and print one line per message. Catalog,
state and flow messages are summarized, anything else is printed as
compact JSON or raw text.

Example usage:
  flowctl monitor
  flowctl monitor --topic 'flowctl/station1/device/+/flow'`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		broker, _ := cmd.Flags().GetString("broker")
		topic, _ := cmd.Flags().GetString("topic")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client, err := mqtt.Connect(broker, "flowctl-monitor", timeout)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Connected to MQTT broker %s, subscribing to %s...\n", broker, topic)

		token := client.Subscribe(topic, 0, func(_ MQTT.Client, msg MQTT.Message) {
			fmt.Printf("%s %s\n", msg.Topic(), formatMessage(msg.Topic(), msg.Payload()))
		})
		if !token.WaitTimeout(timeout) {
			client.Disconnect(200)
			fatalf("subscribe %s: timeout after %v", topic, timeout)
		}
		if err := token.Error(); err != nil {
			client.Disconnect(200)
			fatalf("subscribe %s: %v", topic, err)
		}

		ctx, cancel := signalContext()
		defer cancel()
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		client.Disconnect(200)
	},
}

func formatMessage(topic string, payload []byte) string {
	switch {
	case strings.HasSuffix(topic, "/catalog"):
		var msg catalog.StationCatalogMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Sprintf("%s (error: %v)", payload, err)
		}
		parts := make([]string, 0, len(msg.Devices))
		for _, d := range msg.Devices {
			parts = append(parts, fmt.Sprintf("%s[%s %s/%s slave=%d regs=%d]",
				d.Name, d.Kind, d.Transport, d.Port, d.SlaveID, len(d.Registers)))
		}
		return fmt.Sprintf("catalog station=%s %s", msg.Station, strings.Join(parts, " "))

	case strings.HasSuffix(topic, "/state"):
		var st telemetry.DeviceState
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Sprintf("%s (error: %v)", payload, err)
		}
		line := fmt.Sprintf("state %s %s", st.Name, st.State)
		if st.LastError != "" {
			line += fmt.Sprintf(" error=%q", st.LastError)
		}
		return line

	case strings.HasSuffix(topic, "/flow"):
		var s telemetry.FlowSample
		if err := json.Unmarshal(payload, &s); err != nil {
			return fmt.Sprintf("%s (error: %v)", payload, err)
		}
		line := fmt.Sprintf("flow %s %g status=%d at=%s", s.Device, s.Flow, s.Status, s.Timestamp.Format(time.TimeOnly))
		if s.Error != "" {
			line += fmt.Sprintf(" error=%q", s.Error)
		}
		return line
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		// not JSON, e.g. the online/offline status
		return string(payload)
	}
	return buf.String()
}

func init() {
	f := monitorCmd.Flags()
	f.String("broker", "tcp://localhost:1883", "MQTT broker address")
	f.String("topic", "flowctl/#", "MQTT topic filter")
	f.Duration("timeout", 5*time.Second, "connect and subscribe timeout")

	rootCmd.AddCommand(monitorCmd)
}
