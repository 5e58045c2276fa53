// Package mqtt holds the small paho helpers used by the command line tools.
// The station daemon uses internal/messaging instead.
package mqtt

// cSpell:ignore mqtt
import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connect opens a short lived client. The client id is made unique so two
// tools can run side by side.
func Connect(brokerURL, name string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("%s-%d", name, time.Now().UnixNano()))
	opts.SetAutoReconnect(true)
	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %v", brokerURL, timeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}
	return c, nil
}
