package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/state"
	"github.com/fisaks/flowctl/internal/telemetry"
)

type StationBroker interface {
	Broker
	telemetry.StationPublisher
	StartCommandSubscriber(ctx context.Context, subscriber telemetry.CommandSubscriber) error
}

type stationBroker struct {
	Broker
	subscriber        telemetry.CommandSubscriber
	stationState      state.StationStateStore
	heartbeatInterval time.Duration
}

func NewStationBroker(cfg BrokerConfig, catalog OnConnectPublisher, heartbeatInterval time.Duration) StationBroker {
	return newStationBroker(NewBroker(cfg), catalog, heartbeatInterval)
}

func newStationBroker(broker Broker, catalog OnConnectPublisher, heartbeatInterval time.Duration) *stationBroker {
	b := &stationBroker{
		Broker:            broker,
		heartbeatInterval: heartbeatInterval,
		stationState:      state.NewStationStateStore(),
	}
	if catalog != nil {
		b.AddOnConnectPublisher("catalog", catalog)
	}
	return b
}

func (b *stationBroker) StartCommandSubscriber(ctx context.Context, subscriber telemetry.CommandSubscriber) error {
	b.subscriber = subscriber
	if _, err := b.Subscribe(ctx, b.Topic("device", "+", "cmd"), AtLeastOnce, b.onDeviceMessage); err != nil {
		return err
	}
	_, err := b.Subscribe(ctx, b.Topic("cmd"), AtLeastOnce, b.onStationMessage)
	return err
}

func (b *stationBroker) PublishDeviceState(ctx context.Context, ds telemetry.DeviceState) error {
	if !b.stationState.NeedsPublish(ds.Name, ds, b.heartbeatInterval) {
		return nil
	}
	logging.Debug("Publishing device state", "deviceState", ds)
	err := b.PublishJSON(ctx, b.Topic("device", ds.Name, "state"), FireAndForget, true, ds)
	if err == nil {
		b.stationState.Update(ds.Name, ds)
	}
	return err
}

func (b *stationBroker) PublishFlow(ctx context.Context, sample telemetry.FlowSample) error {
	return b.PublishJSON(ctx, b.Topic("device", sample.Device, "flow"), FireAndForget, false, sample)
}

// ClearPublishedState forces the next state of every device out, e.g. after
// a broker reconnect wiped retained messages.
func (b *stationBroker) ClearPublishedState() {
	b.stationState.Clear()
}

func (b *stationBroker) onDeviceMessage(ctx context.Context, topic string, payload []byte) {
	logging.Debug("Received cmd message", "topic", topic)
	deviceName, ok := parseCommandTopic(b.Topic(), topic)
	if !ok || deviceName == "" {
		logging.Warn("cmd topic malformed", "topic", topic)
		return
	}
	cmd, ok := decodeCommand(payload)
	if !ok {
		return
	}
	cmd.Device = deviceName
	if err := b.subscriber.OnDeviceCommand(ctx, cmd); err != nil {
		logging.Warn("cmd handling", "device", deviceName, "action", cmd.Action, "error", err)
	}
}

func (b *stationBroker) onStationMessage(ctx context.Context, topic string, payload []byte) {
	logging.Debug("Received station cmd message", "topic", topic)
	cmd, ok := decodeCommand(payload)
	if !ok {
		return
	}
	if err := b.subscriber.OnStationCommand(ctx, cmd); err != nil {
		logging.Warn("station cmd handling", "action", cmd.Action, "error", err)
	}
}

func decodeCommand(payload []byte) (telemetry.IncomingCommand, bool) {
	var cmd telemetry.IncomingCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		logging.Warn("cmd json", "error", err)
		return cmd, false
	}
	if cmd.Action == "" {
		logging.Warn("cmd without action", "payload", string(payload))
		return cmd, false
	}
	return cmd, true
}

// parseCommandTopic extracts the device name from <prefix>/device/<name>/cmd.
// It returns "" and true for the station topic <prefix>/cmd.
func parseCommandTopic(prefix, topic string) (string, bool) {
	rest := topic
	if prefix != "" {
		if !strings.HasPrefix(topic, prefix+"/") {
			return "", false
		}
		rest = strings.TrimPrefix(topic, prefix+"/")
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] == "cmd":
		return "", true
	case len(parts) == 3 && parts[0] == "device" && parts[2] == "cmd" && parts[1] != "":
		return parts[1], true
	}
	return "", false
}
