// Package modbus implements device.Transport on top of goburrow/modbus.
package modbus

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/fisaks/flowctl/internal/codec"
	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/util"
	"github.com/goburrow/modbus"
)

// defaultTimeout applies when SerialParams carries no timeout. A zero
// timeout makes goburrow/serial block on reads forever.
const defaultTimeout = time.Second

type ModbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Client is one master link. Calls are serialized and each one carries its
// own slave id, so several slaves can share the link.
type Client struct {
	mu      sync.Mutex
	handler ModbusHandler
	client  modbus.Client
	address string
	debug   bool
}

var _ device.Transport = (*Client)(nil)

func newClient(handler ModbusHandler, address string) *Client {
	return &Client{
		handler: handler,
		client:  modbus.NewClient(handler),
		address: address,
	}
}

// NewRTUClient builds an RTU master for p. The port is opened by Connect.
func NewRTUClient(p device.SerialParams) (*Client, error) {
	if strings.TrimSpace(p.Port) == "" {
		return nil, errors.New("serial port is required")
	}
	handler := modbus.NewRTUClientHandler(p.Port)
	handler.BaudRate = p.BaudRate
	handler.DataBits = p.DataBits
	handler.Parity = strings.ToUpper(p.Parity)
	handler.StopBits = p.StopBits
	handler.SlaveId = p.SlaveID
	handler.Timeout = timeoutOrDefault(p.Timeout)
	if p.Debug {
		handler.Logger = logging.WrapSlog("port", p.Port)
	}
	c := newClient(handler, p.Port)
	c.debug = p.Debug
	return c, nil
}

// NewTCPClient builds a Modbus TCP master. p.Port holds "host:port"; the
// serial settings are ignored. Used against bench gateways and simulators.
func NewTCPClient(p device.SerialParams) (*Client, error) {
	if strings.TrimSpace(p.Port) == "" {
		return nil, errors.New("tcp address is required")
	}
	handler := modbus.NewTCPClientHandler(p.Port)
	handler.SlaveId = p.SlaveID
	handler.Timeout = timeoutOrDefault(p.Timeout)
	if p.Debug {
		handler.Logger = logging.WrapSlog("addr", p.Port)
	}
	c := newClient(handler, p.Port)
	c.debug = p.Debug
	return c, nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

// RTUTransport and TCPTransport are device.TransportFactory values.
func RTUTransport(p device.SerialParams) (device.Transport, error) {
	c, err := NewRTUClient(p)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func TCPTransport(p device.SerialParams) (device.Transport, error) {
	c, err := NewTCPClient(p)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// TransportFor maps a link transport name ("rtu", "tcp") to its factory.
func TransportFor(kind string) (device.TransportFactory, error) {
	switch strings.ToLower(kind) {
	case "", "rtu":
		return RTUTransport, nil
	case "tcp":
		return TCPTransport, nil
	}
	return nil, fmt.Errorf("unsupported transport: %s", kind)
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("open %s: %w", c.address, err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *Client) SetSlave(id byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSlave(id)
}

func (c *Client) setSlave(id byte) {
	switch h := c.handler.(type) {
	case *modbus.RTUClientHandler:
		h.SlaveId = id
	case *modbus.TCPClientHandler:
		h.SlaveId = id
	default:
		logging.Error("Unknown Modbus handler type", "type", fmt.Sprintf("%T", h))
	}
}

func (c *Client) withSlave(slave byte, fn func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setSlave(slave)
	data, err := fn()
	if err != nil && IsTransient(err) {
		logging.Debug("transient modbus error", "address", c.address, "slave", slave, "error", err)
	}
	return data, err
}

// ReadHoldingRegisters reads qty words (FC3). A payload shorter than asked
// for is returned as is; callers decide whether it is usable.
func (c *Client) ReadHoldingRegisters(slave byte, addr, qty uint16) ([]uint16, error) {
	data, err := c.withSlave(slave, func() ([]byte, error) {
		return c.client.ReadHoldingRegisters(addr, qty)
	})
	if err != nil {
		return nil, err
	}
	regs := codec.UnpackRegisters(data)
	if c.debug {
		logging.Debug("modbus read", "address", c.address, "slave", slave, "register", addr, "values", util.WordsToHex(regs))
	}
	return regs, nil
}

// WriteSingleRegister writes one word (FC6).
func (c *Client) WriteSingleRegister(slave byte, addr, value uint16) error {
	_, err := c.withSlave(slave, func() ([]byte, error) {
		return c.client.WriteSingleRegister(addr, value)
	})
	if err == nil && c.debug {
		logging.Debug("modbus write", "address", c.address, "slave", slave, "register", addr, "value", util.WordsToHex([]uint16{value}))
	}
	return err
}

// IsTransient reports whether err looks like a link problem that a reconnect
// may cure, as opposed to a Modbus exception from the slave or a setup
// mistake. Only the root causes are inspected; the wrappers added by the
// controllers ("connection to ... failed", operation names) say nothing
// about the kind of failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, cause := range rootCauses(err) {
		s := strings.ToLower(cause.Error())
		if strings.Contains(s, "connection") ||
			strings.Contains(s, "broken pipe") ||
			strings.Contains(s, "reset") ||
			strings.Contains(s, "closed") ||
			strings.Contains(s, "i/o") ||
			strings.Contains(s, "timeout") ||
			strings.Contains(s, "no such file") {
			return true
		}
	}
	return false
}

// rootCauses follows Unwrap through wrappers and joins down to the errors
// that wrap nothing.
func rootCauses(err error) []error {
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		var out []error
		for _, inner := range e.Unwrap() {
			if inner != nil {
				out = append(out, rootCauses(inner)...)
			}
		}
		return out
	case interface{ Unwrap() error }:
		if inner := e.Unwrap(); inner != nil {
			return rootCauses(inner)
		}
	}
	return []error{err}
}
