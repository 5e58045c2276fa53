package catalog

import (
	"fmt"

	"github.com/fisaks/flowctl/internal/config"
	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/messaging"
)

type StationCatalogMessage struct {
	Station string          `json:"station"`
	Devices []DeviceSummary `json:"devices"`
}

type DeviceSummary struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Port      string     `json:"port"`
	Transport string     `json:"transport"`
	SlaveID   int        `json:"slaveId"`
	BaudRate  int        `json:"baudrate,omitempty"`
	Registers []Register `json:"registers"`
}

type Register struct {
	Address uint16 `json:"address"`
	Name    string `json:"name"`
	Access  string `json:"access"` // "r", "w", "rw"
}

// Entry is one controller as the station runs it.
type Entry struct {
	Name   string
	Kind   string // "gfr" | "relay"
	Link   config.LinkConfig
	Device config.DeviceConfig
}

var registerMaps = map[string][]Register{
	"gfr": {
		{Address: device.RegSetpointHigh, Name: "setpoint_high", Access: "rw"},
		{Address: device.RegSetpointLow, Name: "setpoint_low", Access: "rw"},
		{Address: device.RegGas, Name: "gas", Access: "w"},
		{Address: device.RegFlow, Name: "flow", Access: "r"},
	},
	"relay": {
		{Address: device.RegRelayOnOff, Name: "on_off", Access: "w"},
	},
}

type Catalog struct {
	station string
	entries []Entry
}

func NewStationCatalog(station string, entries ...Entry) *Catalog {
	return &Catalog{station: station, entries: entries}
}

func (c *Catalog) Build() (*StationCatalogMessage, error) {
	devices := make([]DeviceSummary, 0, len(c.entries))
	for _, e := range c.entries {
		regs, ok := registerMaps[e.Kind]
		if !ok {
			return nil, fmt.Errorf("device %s: unknown kind %q", e.Name, e.Kind)
		}
		devices = append(devices, DeviceSummary{
			Name:      e.Name,
			Kind:      e.Kind,
			Port:      e.Link.Port,
			Transport: e.Link.Transport,
			SlaveID:   e.Device.SlaveID,
			BaudRate:  e.Device.BaudRate,
			Registers: regs,
		})
	}
	return &StationCatalogMessage{Station: c.station, Devices: devices}, nil
}

// OnConnectPublisher republishes the catalog, retained, every time the
// broker (re)connects.
func (c *Catalog) OnConnectPublisher(topic string) messaging.OnConnectPublisher {
	return func() (messaging.PublishRequest, error) {
		msg, err := c.Build()
		if err != nil {
			return messaging.PublishRequest{}, fmt.Errorf("failed to build catalog message: %w", err)
		}
		return messaging.PublishRequest{
			Topic:   topic,
			Qos:     messaging.AtLeastOnce,
			Retain:  true,
			Payload: msg,
		}, nil
	}
}
