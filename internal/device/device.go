package device

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fisaks/flowctl/internal/codec"
)

// Profile is what distinguishes one kind of Modbus slave from another.
type Profile struct {
	// Title prefixes every operation name, e.g. "RELAY".
	Title string
	// Label names the device in logs and metrics.
	Label string
	// OnConnect runs right after the link opens, inside the TurnOn operation.
	OnConnect func(d *Device) error
	// BeforeDisconnect runs before the link is closed by TurnOff.
	BeforeDisconnect func(d *Device) error
}

// Device is the controller core shared by the flow regulator and the relay.
// Calls on one Device are serialized; separate Devices never block each other.
type Device struct {
	profile Profile
	label   string

	mu    sync.Mutex
	conn  Transport
	slave byte
	state atomic.Int32

	errs      *ErrorState
	establish Establisher
	observer  Observer
	flowScale float64
}

type Option func(*Device)

func WithTransportFactory(f TransportFactory) Option {
	return func(d *Device) { d.establish.Factory = f }
}

func WithConnectPolicy(p ConnectPolicy) Option {
	return func(d *Device) { d.establish.Policy = p }
}

// WithErrorState makes the controller record failures into s. Passing the
// same ErrorState to several controllers gives them one shared last error.
func WithErrorState(s *ErrorState) Option {
	return func(d *Device) {
		if s != nil {
			d.errs = s
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Device) { d.observer = o }
}

func WithName(name string) Option {
	return func(d *Device) {
		if name != "" {
			d.label = name
		}
	}
}

// WithFlowScale sets the divisor applied to the signed flow register.
func WithFlowScale(scale float64) Option {
	return func(d *Device) {
		if scale > 0 {
			d.flowScale = scale
		}
	}
}

func newDevice(p Profile, opts ...Option) *Device {
	d := &Device{
		profile:   p,
		label:     p.Label,
		errs:      NewErrorState(),
		establish: Establisher{Policy: DefaultConnectPolicy()},
		flowScale: codec.FlowScale,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Device) Name() string { return d.label }

func (d *Device) State() ConnState { return ConnState(d.state.Load()) }

func (d *Device) IsConnected() bool { return d.State() == Connected }

func (d *Device) IsDisconnected() bool { return !d.IsConnected() }

// GetLastError returns the text of the last failure, or "" after a success.
func (d *Device) GetLastError() string { return d.errs.Message() }

// LastErr returns the last failure as an error value.
func (d *Device) LastErr() error { return d.errs.Err() }

// TurnOn opens the link described by p. A link that is already open is
// closed first.
func (d *Device) TurnOn(ctx context.Context, p SerialParams) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Run(d.guard(), NewPolicy(d.op("Turning On")).SkipCheck(), func() (Status, error) {
		d.release()
		d.state.Store(int32(Connecting))
		t, err := d.establish.Establish(ctx, p)
		if err != nil {
			d.state.Store(int32(Disconnected))
			return StatusError, err
		}
		d.conn = t
		d.slave = p.SlaveID
		d.state.Store(int32(Connected))
		if d.profile.OnConnect != nil {
			if err := d.profile.OnConnect(d); err != nil {
				return StatusError, err
			}
		}
		return StatusOK, nil
	})
}

// TurnOff runs the profile's disconnect step and closes the link.
func (d *Device) TurnOff() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Run(d.guard(), NewPolicy(d.op("Turning Off")), func() (Status, error) {
		if d.profile.BeforeDisconnect != nil {
			if err := d.profile.BeforeDisconnect(d); err != nil {
				return StatusError, err
			}
		}
		err := d.conn.Close()
		d.conn = nil
		d.state.Store(int32(Disconnected))
		if err != nil {
			return StatusError, err
		}
		return StatusOK, nil
	})
}

func (d *Device) op(action string) string {
	return d.profile.Title + " " + action
}

func (d *Device) guard() Guard {
	return Guard{
		Device:   d.label,
		Slot:     slot{d},
		Errors:   d.errs,
		Observer: d.observer,
	}
}

// fail records err for op without going through the guard's error path,
// so the link is kept open.
func (d *Device) fail(op string, err error) {
	d.errs.Set(&OperationError{Op: op, Err: err})
}

func (d *Device) release() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
	d.state.Store(int32(Disconnected))
}

func (d *Device) writeRegister(addr, value uint16) error {
	return d.conn.WriteSingleRegister(d.slave, addr, value)
}

func (d *Device) readRegisters(addr, qty uint16) ([]uint16, error) {
	return d.conn.ReadHoldingRegisters(d.slave, addr, qty)
}

// slot exposes the connection field to the guard. It is only used while
// d.mu is held.
type slot struct{ d *Device }

func (s slot) Present() bool { return s.d.conn != nil }

func (s slot) Release() { s.d.release() }
