// Package telemetry holds the messages exchanged between the station and the bus.
package telemetry

import (
	"context"
	"time"
)

type DeviceState struct {
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`  // "gfr" | "relay"
	State     string    `json:"state"` // "connected", "connecting", "disconnected"
	Connected bool      `json:"connected"`
	LastError string    `json:"lastError,omitempty"`
}

type FlowSample struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Flow      float64   `json:"flow"`
	Status    int       `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// IncomingCommand is the JSON body of a command message.
type IncomingCommand struct {
	ID     string `json:"id,omitempty"`
	Device string `json:"device,omitempty"` // overridden by topic
	Action string `json:"action"`
	Value  any    `json:"value,omitempty"` // number or numeric string
}

type StationPublisher interface {
	PublishDeviceState(ctx context.Context, state DeviceState) error
	PublishFlow(ctx context.Context, sample FlowSample) error
	ClearPublishedState()
}

type CommandSubscriber interface {
	OnDeviceCommand(ctx context.Context, command IncomingCommand) error
	OnStationCommand(ctx context.Context, command IncomingCommand) error
}
