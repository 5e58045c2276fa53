package device

import (
	"context"
	"errors"
	"time"

	"github.com/fisaks/flowctl/internal/logging"
)

// ConnectPolicy is the retry schedule used when opening a link.
type ConnectPolicy struct {
	// SettleDelay is waited before the transport is built. USB serial
	// adapters need it to finish enumerating.
	SettleDelay time.Duration
	SlaveDelay  time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	// Sleep waits d or until ctx is done. Nil means SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultConnectPolicy() ConnectPolicy {
	return ConnectPolicy{
		SettleDelay: 500 * time.Millisecond,
		SlaveDelay:  200 * time.Millisecond,
		MaxAttempts: 3,
		RetryDelay:  500 * time.Millisecond,
	}
}

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Establisher opens serial Modbus links with retries.
type Establisher struct {
	Factory TransportFactory
	Policy  ConnectPolicy
}

// Establish builds a transport for p, sets the slave id and connects it.
// On failure the transport is closed and a *ConnectionError is returned.
func (e Establisher) Establish(ctx context.Context, p SerialParams) (Transport, error) {
	pol := e.Policy
	sleep := pol.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	attempts := pol.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	if e.Factory == nil {
		return nil, &ConnectionError{Port: p.Port, Cause: ErrNoTransport}
	}

	if err := sleep(ctx, pol.SettleDelay); err != nil {
		return nil, &ConnectionError{Port: p.Port, Cause: err}
	}
	t, err := e.Factory(p)
	if err != nil {
		return nil, &ConnectionError{Port: p.Port, Cause: err}
	}
	if err := sleep(ctx, pol.SlaveDelay); err != nil {
		_ = t.Close()
		return nil, &ConnectionError{Port: p.Port, Cause: err}
	}
	t.SetSlave(p.SlaveID)

	var lastErr error
	made := 0
	for made < attempts {
		if made > 0 {
			if err := sleep(ctx, pol.RetryDelay); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}
		made++
		err := t.Connect()
		if err == nil {
			logging.Debug("modbus link open", "port", p.Port, "slave", p.SlaveID, "attempts", made)
			return t, nil
		}
		logging.Debug("modbus connect attempt failed", "port", p.Port, "attempt", made, "error", err)
		if lastErr == nil || err.Error() != "" {
			lastErr = err
		}
	}

	_ = t.Close()
	return nil, &ConnectionError{Port: p.Port, Attempts: made, Cause: lastErr}
}
