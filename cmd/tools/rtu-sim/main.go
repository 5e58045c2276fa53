package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/fisaks/flowctl/internal/config"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/sim"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logging.Init(getenv("LOG_LEVEL", "info"), "")

	gfrLink := config.LinkConfig{Port: getenv("SIM_GFR_PORT", ""), Config: os.Getenv("SIM_GFR_CONFIG")}
	relayLink := config.LinkConfig{Port: getenv("SIM_RELAY_PORT", ""), Config: os.Getenv("SIM_RELAY_CONFIG")}
	if gfrLink.Port == "" || relayLink.Port == "" {
		logging.Fatal("SIM_GFR_PORT and SIM_RELAY_PORT must be set")
	}

	gfrCfg, err := gfrLink.LoadDevice(config.FlowRegulatorDefaults())
	if err != nil {
		logging.Fatal("gfr settings", "error", err)
	}
	relayCfg, err := relayLink.LoadDevice(config.RelayDefaults())
	if err != nil {
		logging.Fatal("relay settings", "error", err)
	}

	servers, err := listenAll(
		slave{name: "gfr", port: gfrLink.Port, cfg: gfrCfg},
		slave{name: "relay", port: relayLink.Port, cfg: relayCfg},
	)
	if err != nil {
		logging.Fatal("RTU simulator", "error", err)
	}

	s := sim.New(
		&sim.Device{Name: "gfr", Kind: "gfr", SlaveID: uint8(gfrCfg.SlaveID), Port: gfrLink.Port,
			Bank: serverBank{srv: servers["gfr"], id: uint8(gfrCfg.SlaveID)}},
		&sim.Device{Name: "relay", Kind: "relay", SlaveID: uint8(relayCfg.SlaveID), Port: relayLink.Port,
			Bank: serverBank{srv: servers["relay"], id: uint8(relayCfg.SlaveID)}},
		gfrCfg.FlowScale,
	)

	periodMs, err := strconv.Atoi(getenv("SIM_STEP_MS", "200"))
	if err != nil || periodMs <= 0 {
		logging.Fatal("SIM_STEP_MS must be a positive number", "value", os.Getenv("SIM_STEP_MS"))
	}
	go s.Run(context.Background(), time.Duration(periodMs)*time.Millisecond)

	if err := StartRestAPI(getenv("SIM_REST_ADDR", ":8080"), s); err != nil {
		logging.Fatal("REST API", "error", err)
	}
}
