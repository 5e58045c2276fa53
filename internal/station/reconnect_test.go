package station

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/modbus"
)

// turnOnFailure is what a controller records when TurnOn gives up.
func turnOnFailure(cause error) error {
	return &device.OperationError{
		Op:  "GAS FLOW REGULATOR Turn On",
		Err: &device.ConnectionError{Port: "/dev/ttyUSB1", Attempts: 3, Cause: cause},
	}
}

func TestReconnectStopsOnPermanentTurnOnFailure(t *testing.T) {
	s, gfr, _, _, log := newTestStation(Config{
		Reconnect: ReconnectPolicy{Enabled: true, Min: time.Hour, Max: time.Hour, Retryable: modbus.IsTransient},
	})
	defer s.scheduler.Stop()
	ctx := context.Background()
	s.handleCommand(ctx, Command{Device: "gfr", Action: ActionTurnOn})

	// the link drops with a timeout: worth a reconnect
	gfr.flowErr = errors.New("serial: timeout")
	s.pollOnce(ctx)
	if !s.scheduler.Pending(reconnectKey("gfr")) {
		t.Fatalf("no reconnect scheduled after a timeout")
	}

	// the reconnect finds the port unusable
	s.scheduler.Cancel(reconnectKey("gfr"))
	gfr.turnOnErrs = []error{turnOnFailure(&os.PathError{Op: "open", Path: "/dev/ttyUSB1", Err: syscall.EACCES})}
	s.handleCommand(ctx, Command{Device: "gfr", Action: ActionReconnect})
	s.checkReconnect()

	if s.scheduler.Pending(reconnectKey("gfr")) || s.wantOn["gfr"] {
		t.Fatalf("reconnect kept going after permission denied, calls=%v", log.get())
	}
}

func TestReconnectRetriesTransientTurnOnFailure(t *testing.T) {
	s, gfr, _, _, _ := newTestStation(Config{
		Reconnect: ReconnectPolicy{Enabled: true, Min: time.Hour, Max: time.Hour, Retryable: modbus.IsTransient},
	})
	defer s.scheduler.Stop()
	ctx := context.Background()

	gfr.turnOnErrs = []error{turnOnFailure(errors.New("serial: timeout"))}
	s.handleCommand(ctx, Command{Device: "gfr", Action: ActionTurnOn})
	s.checkReconnect()

	if !s.scheduler.Pending(reconnectKey("gfr")) || !s.wantOn["gfr"] {
		t.Fatalf("transient TurnOn failure should be retried")
	}
}
