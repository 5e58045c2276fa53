// Package sim mimics a flow regulator behind a relay for bench testing.
// While the relay register is set the flow register follows the setpoint,
// otherwise it reads zero.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/fisaks/flowctl/internal/codec"
	"github.com/fisaks/flowctl/internal/device"
)

// Bank is the holding register memory of one simulated slave.
type Bank interface {
	Read(addr uint16) uint16
	Write(addr, value uint16)
}

type Device struct {
	Name    string
	Kind    string // "gfr" | "relay"
	SlaveID uint8
	Port    string
	Bank    Bank
}

// Registers lists the registers each kind of device exposes.
var Registers = map[string][]uint16{
	"gfr":   {device.RegSetpointHigh, device.RegSetpointLow, device.RegGas, device.RegFlow},
	"relay": {device.RegRelayOnOff},
}

type Simulator struct {
	mu        sync.Mutex
	gfr       *Device
	relay     *Device
	flowScale float64
	override  *float64
}

func New(gfr, relay *Device, flowScale float64) *Simulator {
	if flowScale <= 0 {
		flowScale = codec.FlowScale
	}
	return &Simulator{gfr: gfr, relay: relay, flowScale: flowScale}
}

func (s *Simulator) Device(name string) *Device {
	switch name {
	case s.gfr.Name:
		return s.gfr
	case s.relay.Name:
		return s.relay
	}
	return nil
}

func (s *Simulator) Read(d *Device, addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return d.Bank.Read(addr)
}

func (s *Simulator) Write(d *Device, addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.Bank.Write(addr, value)
}

// SetFlowOverride pins the flow register to v. Nil returns to following the
// setpoint.
func (s *Simulator) SetFlowOverride(v *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = v
}

func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	relayOn := s.relay.Bank.Read(device.RegRelayOnOff) != 0
	var flow float64
	switch {
	case s.override != nil:
		flow = *s.override
	case relayOn:
		flow = codec.DecodeSetpoint(s.gfr.Bank.Read(device.RegSetpointHigh), s.gfr.Bank.Read(device.RegSetpointLow))
	}
	s.gfr.Bank.Write(device.RegFlow, FlowRegister(flow, s.flowScale))
}

func (s *Simulator) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Step()
		}
	}
}

// FlowRegister encodes flow as the signed, scaled register value, saturating
// at the int16 limits.
func FlowRegister(flow, scale float64) uint16 {
	if scale <= 0 {
		scale = codec.FlowScale
	}
	raw := math.Round(flow * scale)
	if raw > math.MaxInt16 {
		raw = math.MaxInt16
	}
	if raw < math.MinInt16 {
		raw = math.MinInt16
	}
	return uint16(int16(raw))
}
