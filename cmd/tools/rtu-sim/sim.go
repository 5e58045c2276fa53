package main

import (
	"fmt"
	"time"

	"github.com/fisaks/flowctl/internal/config"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/goburrow/serial"
	"github.com/womat/mbserver"
)

// serverBank exposes the holding registers of one slave of an RTU server.
type serverBank struct {
	srv *mbserver.Server
	id  uint8
}

func (b serverBank) Read(addr uint16) uint16 {
	return b.srv.Devices[b.id].HoldingRegisters[addr]
}

func (b serverBank) Write(addr, value uint16) {
	b.srv.Devices[b.id].HoldingRegisters[addr] = value
}

type slave struct {
	name string
	port string
	cfg  *config.DeviceConfig
}

// bus is one serial port and the slaves answering on it. The first slave's
// settings configure the port.
type bus struct {
	port   string
	slaves []slave
}

// planBuses groups slaves by port in first-seen order. Two slaves with the
// same id on one port cannot both answer.
func planBuses(slaves ...slave) ([]bus, error) {
	var buses []bus
	index := make(map[string]int)
	for _, s := range slaves {
		i, ok := index[s.port]
		if !ok {
			index[s.port] = len(buses)
			buses = append(buses, bus{port: s.port, slaves: []slave{s}})
			continue
		}
		for _, other := range buses[i].slaves {
			if other.cfg.SlaveID == s.cfg.SlaveID {
				return nil, fmt.Errorf("%s and %s share slave id %d on %s", other.name, s.name, s.cfg.SlaveID, s.port)
			}
		}
		buses[i].slaves = append(buses[i].slaves, s)
	}
	return buses, nil
}

// newBusServer creates a server with one device per slave on the bus and
// none other, so unknown ids stay silent like on a real bus.
func newBusServer(b bus) (*mbserver.Server, error) {
	s := mbserver.NewServer()
	want := make(map[uint8]bool, len(b.slaves))
	for _, sl := range b.slaves {
		id := uint8(sl.cfg.SlaveID)
		want[id] = true
		if _, ok := s.Devices[id]; ok {
			continue
		}
		if err := s.NewDevice(id); err != nil {
			return nil, fmt.Errorf("NewDevice(%d): %w", id, err)
		}
	}
	for id := range s.Devices {
		if !want[id] {
			_ = s.RemoveDevice(id)
		}
	}
	return s, nil
}

// listenRTU serves every slave of the bus on its serial port.
func listenRTU(b bus) (*mbserver.Server, error) {
	s, err := newBusServer(b)
	if err != nil {
		return nil, err
	}
	dc := b.slaves[0].cfg
	p, err := serial.Open(&serial.Config{
		Address:  b.port,
		BaudRate: dc.BaudRate,
		DataBits: dc.DataBits,
		StopBits: dc.StopBits,
		Parity:   dc.Parity,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", b.port, err)
	}
	if err := s.ListenRTU(p); err != nil {
		p.Close()
		return nil, fmt.Errorf("listenRTU: %w", err)
	}
	for _, sl := range b.slaves {
		logging.Info("RTU simulator ready", "device", sl.name, "port", b.port, "slave", sl.cfg.SlaveID, "baudrate", dc.BaudRate)
	}
	return s, nil
}

// listenAll starts one server per bus and returns the server of each device.
func listenAll(slaves ...slave) (map[string]*mbserver.Server, error) {
	buses, err := planBuses(slaves...)
	if err != nil {
		return nil, err
	}
	servers := make(map[string]*mbserver.Server, len(slaves))
	for _, b := range buses {
		for _, sl := range b.slaves[1:] {
			if !sameLine(sl.cfg, b.slaves[0].cfg) {
				logging.Warn("serial settings differ on shared port, using the first device's",
					"port", b.port, "device", sl.name, "using", b.slaves[0].name)
			}
		}
		srv, err := listenRTU(b)
		if err != nil {
			return nil, err
		}
		for _, sl := range b.slaves {
			servers[sl.name] = srv
		}
	}
	return servers, nil
}

func sameLine(a, b *config.DeviceConfig) bool {
	return a.BaudRate == b.BaudRate && a.DataBits == b.DataBits && a.StopBits == b.StopBits && a.Parity == b.Parity
}
