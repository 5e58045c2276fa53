package station

import (
	"context"
	"fmt"
	"strings"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/telemetry"
	"github.com/fisaks/flowctl/internal/util"
)

const (
	ActionTurnOn    = "turnon"
	ActionTurnOff   = "turnoff"
	ActionSetFlow   = "setflow"
	ActionSetGas    = "setgas"
	ActionReconnect = "reconnect"

	ActionOpen   = "open"
	ActionClose  = "close"
	ActionResync = "resync"
)

// Command is a validated request for the run loop. Device is empty for
// station commands.
type Command struct {
	ID     string
	Device string
	Action string
	Value  float64
}

func (s *Station) PushCommand(cmd Command) bool {
	select {
	case s.cmdCh <- cmd:
		return true
	default:
		return false
	}
}

func (s *Station) OnDeviceCommand(ctx context.Context, in telemetry.IncomingCommand) error {
	c := s.controller(in.Device)
	if c == nil {
		return fmt.Errorf("device not found: %s", in.Device)
	}
	cmd := Command{ID: in.ID, Device: in.Device, Action: strings.ToLower(in.Action)}
	switch cmd.Action {
	case ActionTurnOn, ActionTurnOff:
	case ActionSetFlow:
		if c != Controller(s.gfr) {
			return fmt.Errorf("%s does not support %s", in.Device, in.Action)
		}
		v, err := util.ToFloat64(in.Value)
		if err != nil {
			return fmt.Errorf("setFlow: %w", err)
		}
		cmd.Value = v
	case ActionSetGas:
		if c != Controller(s.gfr) {
			return fmt.Errorf("%s does not support %s", in.Device, in.Action)
		}
		v, err := util.ToUint16(in.Value)
		if err != nil {
			return fmt.Errorf("setGas: %w", err)
		}
		cmd.Value = float64(v)
	default:
		return fmt.Errorf("unknown action %q for %s", in.Action, in.Device)
	}
	logging.Debug("Received device command", "device", cmd.Device, "action", cmd.Action, "value", cmd.Value)
	return s.push(cmd)
}

func (s *Station) OnStationCommand(ctx context.Context, in telemetry.IncomingCommand) error {
	cmd := Command{ID: in.ID, Action: strings.ToLower(in.Action)}
	switch cmd.Action {
	case ActionOpen, ActionClose, ActionResync:
	default:
		return fmt.Errorf("unknown station action %q", in.Action)
	}
	logging.Debug("Received station command", "action", cmd.Action)
	return s.push(cmd)
}

func (s *Station) push(cmd Command) error {
	if !s.PushCommand(cmd) {
		return fmt.Errorf("command buffer full, dropped %s", cmd.Action)
	}
	return nil
}

func (s *Station) handleCommand(ctx context.Context, cmd Command) {
	if cmd.Device == "" {
		s.handleStationCommand(ctx, cmd)
		return
	}
	c := s.controller(cmd.Device)
	if c == nil {
		logging.Warn("Command for unknown device", "device", cmd.Device, "action", cmd.Action)
		return
	}

	var st device.Status
	switch cmd.Action {
	case ActionTurnOn:
		s.wantOn[c.Name()] = true
		st = s.turnOn(ctx, c)
	case ActionReconnect:
		if !s.wantOn[c.Name()] || c.IsConnected() {
			return
		}
		st = s.turnOn(ctx, c)
	case ActionTurnOff:
		s.wantOn[c.Name()] = false
		s.resetBackoff(c.Name())
		st = c.TurnOff()
	case ActionSetFlow:
		st = s.gfr.SetFlow(cmd.Value)
	case ActionSetGas:
		st = s.gfr.SetGas(uint16(cmd.Value))
	default:
		logging.Warn("Unknown command action", "device", cmd.Device, "action", cmd.Action)
		return
	}
	if st != device.StatusOK {
		logging.Warn("Command failed", "id", cmd.ID, "device", cmd.Device, "action", cmd.Action, "error", c.GetLastError())
	}
	s.publishStates(ctx)
}

func (s *Station) turnOn(ctx context.Context, c Controller) device.Status {
	st := c.TurnOn(ctx, s.paramsFor(c))
	if st == device.StatusOK {
		s.resetBackoff(c.Name())
	}
	return st
}

func (s *Station) handleStationCommand(ctx context.Context, cmd Command) {
	switch cmd.Action {
	case ActionOpen:
		if err := s.Open(ctx); err != nil {
			logging.Warn("Station open failed", "station", s.cfg.Name, "error", err)
		} else {
			for _, c := range s.controllers() {
				s.wantOn[c.Name()] = true
				s.resetBackoff(c.Name())
			}
		}
	case ActionClose:
		for _, c := range s.controllers() {
			s.wantOn[c.Name()] = false
			s.resetBackoff(c.Name())
		}
		if err := s.Close(); err != nil {
			logging.Warn("Station close failed", "station", s.cfg.Name, "error", err)
		}
	case ActionResync:
		logging.Info("Received resync command")
		s.publisher.ClearPublishedState()
	default:
		logging.Warn("Unknown station action", "action", cmd.Action)
		return
	}
	s.publishStates(ctx)
}
