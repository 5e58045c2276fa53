package device

import (
	"fmt"
	"time"

	"github.com/fisaks/flowctl/internal/logging"
)

// Slot gives the guard access to the connection field of the controller
// that owns the operation.
type Slot interface {
	Present() bool
	// Release closes the connection, ignoring close errors, and clears the field.
	Release()
}

type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeFailed         Outcome = "failed"
	OutcomeNotInitialized Outcome = "not_initialized"
)

// Observer is notified once per guarded operation.
type Observer interface {
	ObserveOperation(device, op string, outcome Outcome, elapsed time.Duration)
}

// Policy configures how Run and RunValue treat one operation.
type Policy struct {
	Name            string
	SkipDeviceCheck bool
	CleanupOnError  bool
	PreserveReturn  bool
	Success         Status
	Error           Status
}

// NewPolicy returns the common policy: device check on, cleanup on error,
// StatusOK and StatusError as sentinels.
func NewPolicy(name string) Policy {
	return Policy{
		Name:           name,
		CleanupOnError: true,
		Success:        StatusOK,
		Error:          StatusError,
	}
}

func (p Policy) SkipCheck() Policy {
	p.SkipDeviceCheck = true
	return p
}

func (p Policy) Preserve() Policy {
	p.PreserveReturn = true
	return p
}

func (p Policy) KeepOnError() Policy {
	p.CleanupOnError = false
	return p
}

// Guard binds an operation to the controller it runs on.
type Guard struct {
	Device   string
	Slot     Slot
	Errors   *ErrorState
	Observer Observer
}

// Run executes op under policy p and reduces the result to a status.
func Run(g Guard, p Policy, op func() (Status, error)) Status {
	st, _ := RunValue(g, p, func() (Status, struct{}, error) {
		s, err := op()
		return s, struct{}{}, err
	})
	return st
}

// RunValue executes op under policy p.
//
// A missing connection fails before op is called. An error or panic from op
// is recorded as "<name> failed: <cause>" and, with CleanupOnError, releases
// the connection. A returned p.Error status is passed through and leaves the
// recorded error as op set it. Any other result clears the recorded error.
func RunValue[T any](g Guard, p Policy, op func() (Status, T, error)) (Status, T) {
	var zero T
	start := time.Now()
	outcome := OutcomeOK
	defer func() {
		if g.Observer != nil {
			g.Observer.ObserveOperation(g.Device, p.Name, outcome, time.Since(start))
		}
	}()

	if !p.SkipDeviceCheck && !g.Slot.Present() {
		outcome = OutcomeNotInitialized
		g.Errors.Set(&OperationError{Op: p.Name, Err: ErrNotInitialized})
		logging.Debug("operation skipped", "device", g.Device, "op", p.Name, "reason", ErrNotInitialized)
		return p.Error, zero
	}

	st, v, err := invoke(op)
	if err != nil {
		outcome = OutcomeFailed
		g.Errors.Set(&OperationError{Op: p.Name, Err: err})
		logging.Warn("operation failed", "device", g.Device, "op", p.Name, "error", err, "cleanup", p.CleanupOnError)
		if p.CleanupOnError {
			g.Slot.Release()
		}
		return p.Error, zero
	}
	if st == p.Error {
		outcome = OutcomeFailed
		return p.Error, zero
	}

	g.Errors.Clear()
	if p.PreserveReturn {
		return st, v
	}
	return p.Success, zero
}

func invoke[T any](op func() (Status, T, error)) (st Status, v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op()
}
