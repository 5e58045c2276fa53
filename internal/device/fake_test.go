package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeTransport struct {
	mu sync.Mutex

	connectErrs []error // returned by successive Connect calls, then nil
	connects    int
	closes      int
	slave       byte

	regs      map[uint16]uint16
	events    []string
	readErr   error
	writeErr  error
	emptyRead bool
	panicRead bool

	// entered is closed on the first read; reads then wait for hold.
	entered chan struct{}
	hold    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: map[uint16]uint16{}}
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.events = append(f.events, "close")
	return nil
}

func (f *fakeTransport) SetSlave(id byte) {
	f.mu.Lock()
	f.slave = id
	f.mu.Unlock()
}

func (f *fakeTransport) ReadHoldingRegisters(slave byte, addr, qty uint16) ([]uint16, error) {
	if f.hold != nil {
		f.mu.Lock()
		if f.entered != nil {
			close(f.entered)
			f.entered = nil
		}
		f.mu.Unlock()
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicRead {
		panic("bus fault")
	}
	f.events = append(f.events, fmt.Sprintf("read %d:%d+%d", slave, addr, qty))
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.emptyRead {
		return []uint16{}, nil
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = f.regs[addr+uint16(i)]
	}
	return out, nil
}

func (f *fakeTransport) WriteSingleRegister(slave byte, addr, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.events = append(f.events, fmt.Sprintf("write %d:%d=%d", slave, addr, value))
	f.regs[addr] = value
	return nil
}

func (f *fakeTransport) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeTransport) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func factoryFor(t *fakeTransport) TransportFactory {
	return func(SerialParams) (Transport, error) { return t, nil }
}

// recordingSleep returns a policy with the default delays whose Sleep only
// records the requested durations.
func recordingSleep() (ConnectPolicy, *[]time.Duration) {
	var slept []time.Duration
	p := DefaultConnectPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

func instantPolicy() ConnectPolicy {
	p, _ := recordingSleep()
	return p
}

func testOpts(t *fakeTransport) []Option {
	return []Option{WithTransportFactory(factoryFor(t)), WithConnectPolicy(instantPolicy())}
}

var errBus = errors.New("timeout")
