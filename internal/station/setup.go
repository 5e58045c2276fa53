package station

import (
	"fmt"

	"github.com/fisaks/flowctl/internal/config"
	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/modbus"
)

// NewFlowRegulator builds the regulator attached at link. The returned
// settings give the serial parameters for TurnOn.
func NewFlowRegulator(link config.LinkConfig, opts ...device.Option) (*device.FlowRegulator, *config.DeviceConfig, error) {
	dc, base, err := linkOptions(link, config.FlowRegulatorDefaults(), "gfr")
	if err != nil {
		return nil, nil, err
	}
	base = append(base, device.WithFlowScale(dc.FlowScale))
	return device.NewFlowRegulator(append(base, opts...)...), dc, nil
}

func NewRelay(link config.LinkConfig, opts ...device.Option) (*device.Relay, *config.DeviceConfig, error) {
	dc, base, err := linkOptions(link, config.RelayDefaults(), "relay")
	if err != nil {
		return nil, nil, err
	}
	return device.NewRelay(append(base, opts...)...), dc, nil
}

func linkOptions(link config.LinkConfig, defaults config.DeviceConfig, name string) (*config.DeviceConfig, []device.Option, error) {
	dc, err := link.LoadDevice(defaults)
	if err != nil {
		return nil, nil, fmt.Errorf("%s settings: %w", name, err)
	}
	factory, err := modbus.TransportFor(link.Transport)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return dc, []device.Option{device.WithName(name), device.WithTransportFactory(factory)}, nil
}

// FromConfig builds a station with both controllers from cfg. Extra device
// options, e.g. an observer, are applied to both controllers.
func FromConfig(cfg *config.StationConfig, devOpts []device.Option, opts ...Option) (*Station, error) {
	gfr, gfrCfg, err := NewFlowRegulator(cfg.Devices.GFR, devOpts...)
	if err != nil {
		return nil, err
	}
	relay, relayCfg, err := NewRelay(cfg.Devices.Relay, devOpts...)
	if err != nil {
		return nil, err
	}
	sc := Config{
		Name:              cfg.Name,
		PollPeriod:        cfg.PollInterval(),
		CommandBufferSize: cfg.CommandBufferSize,
		OpenOnStart:       cfg.OpenOnStart,
		FlowRegulator:     gfrCfg.SerialParams(cfg.Devices.GFR.Port),
		Relay:             relayCfg.SerialParams(cfg.Devices.Relay.Port),
		Reconnect: ReconnectPolicy{
			Enabled:   cfg.Reconnect.Enabled,
			Min:       cfg.Reconnect.Min(),
			Max:       cfg.Reconnect.Max(),
			Retryable: modbus.IsTransient,
		},
	}
	return New(sc, gfr, relay, opts...), nil
}
