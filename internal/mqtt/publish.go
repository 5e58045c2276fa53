package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/fisaks/flowctl/internal/telemetry"
)

// CommandTopic returns the topic a station listens on for cmd. Commands
// without a device go to the station itself.
func CommandTopic(prefix string, cmd telemetry.IncomingCommand) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if cmd.Device == "" {
		return prefix + "/cmd"
	}
	return prefix + "/device/" + cmd.Device + "/cmd"
}

func PublishCommand(client MQTT.Client, prefix string, cmd telemetry.IncomingCommand, timeout time.Duration) (string, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("marshal command: %w", err)
	}
	topic := CommandTopic(prefix, cmd)
	token := client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(timeout) {
		return topic, fmt.Errorf("publish to %s: timeout after %v", topic, timeout)
	}
	return topic, token.Error()
}
