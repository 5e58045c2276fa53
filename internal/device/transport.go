// Package device drives the station's Modbus slaves: the gas-flow regulator
// and the relay. Every public controller call returns a Status instead of an
// error; the failure text is kept on the controller and read with GetLastError.
package device

import (
	"fmt"
	"time"
)

type Status int

const (
	StatusOK    Status = 0
	StatusError Status = -1
)

type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// SerialParams describes one serial Modbus link and the slave behind it.
type SerialParams struct {
	Port     string
	BaudRate int
	Parity   string
	DataBits int
	StopBits int
	SlaveID  byte
	Timeout  time.Duration
	Debug    bool
}

// Transport is an open Modbus master link. The slave id is passed with every
// register call because several slaves may share one physical bus.
type Transport interface {
	Connect() error
	Close() error
	SetSlave(id byte)
	ReadHoldingRegisters(slave byte, addr, qty uint16) ([]uint16, error)
	WriteSingleRegister(slave byte, addr, value uint16) error
}

// TransportFactory builds an unopened Transport for the given link.
type TransportFactory func(p SerialParams) (Transport, error)
