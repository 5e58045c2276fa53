package main

import (
	"testing"

	"github.com/fisaks/flowctl/internal/codec"
	"github.com/fisaks/flowctl/internal/device"
	"github.com/tbrandon/mbserver"
)

func TestSimulatorOverSharedRegisters(t *testing.T) {
	srv := mbserver.NewServer()
	s := newSimulator(srv, ":0")

	high, low, err := codec.EncodeSetpoint(20)
	if err != nil {
		t.Fatal(err)
	}
	srv.HoldingRegisters[device.RegSetpointHigh] = high
	srv.HoldingRegisters[device.RegSetpointLow] = low
	srv.HoldingRegisters[device.RegRelayOnOff] = 1

	s.Step()
	if got := codec.DecodeFlow(srv.HoldingRegisters[device.RegFlow], codec.FlowScale); got != 20 {
		t.Fatalf("flow = %v, want 20", got)
	}
	if v := s.Read(s.Device("relay"), device.RegRelayOnOff); v != 1 {
		t.Fatalf("relay register = %d", v)
	}
}
