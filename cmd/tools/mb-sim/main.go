package main

// cSpell:ignore mbserver Modbus
import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fisaks/flowctl/internal/codec"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/sim"
	"github.com/tbrandon/mbserver"
)

// tcpBank is the holding register table of a TCP server. The server answers
// every unit id, so both devices share it; their registers do not overlap.
type tcpBank struct {
	srv *mbserver.Server
}

func (b tcpBank) Read(addr uint16) uint16 { return b.srv.HoldingRegisters[addr] }

func (b tcpBank) Write(addr, value uint16) { b.srv.HoldingRegisters[addr] = value }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newSimulator(srv *mbserver.Server, addr string) *sim.Simulator {
	bank := tcpBank{srv: srv}
	return sim.New(
		&sim.Device{Name: "gfr", Kind: "gfr", SlaveID: 1, Port: addr, Bank: bank},
		&sim.Device{Name: "relay", Kind: "relay", SlaveID: 1, Port: addr, Bank: bank},
		codec.FlowScale,
	)
}

func main() {
	logging.Init(getenv("LOG_LEVEL", "info"), "")

	addr := getenv("MB_LISTEN_ADDR", ":1502")
	periodMs, err := strconv.Atoi(getenv("SIM_STEP_MS", "200"))
	if err != nil || periodMs <= 0 {
		logging.Fatal("SIM_STEP_MS must be a positive number", "value", os.Getenv("SIM_STEP_MS"))
	}

	srv := mbserver.NewServer()
	if err := srv.ListenTCP(addr); err != nil {
		logging.Fatal("ListenTCP", "addr", addr, "error", err)
	}
	defer srv.Close()
	logging.Info("Modbus TCP simulator listening", "addr", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	newSimulator(srv, addr).Run(ctx, time.Duration(periodMs)*time.Millisecond)
	logging.Info("Modbus TCP simulator stopped")
}
