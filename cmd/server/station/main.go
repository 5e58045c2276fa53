package main

// cSpell:ignore mqtt modbus
import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fisaks/flowctl/internal/catalog"
	"github.com/fisaks/flowctl/internal/config"
	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/messaging"
	"github.com/fisaks/flowctl/internal/metrics"
	"github.com/fisaks/flowctl/internal/station"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	path := getenv("FLOWCTL_CONFIG", "")

	cfg, err := config.LoadStation(path)
	if err != nil {
		logging.Fatal("Station config error", "error", err)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)
	logging.Info("Loaded config",
		"station", cfg.Name,
		"pollMs", cfg.PollIntervalMs,
		"gfrPort", cfg.Devices.GFR.Port,
		"relayPort", cfg.Devices.Relay.Port,
	)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logging.Error("Metrics server failed", "error", err)
			}
		}()
	}

	opts := []station.Option{station.WithRecorder(m)}
	var broker messaging.StationBroker
	if cfg.MQTT.Enabled {
		cat := catalog.NewStationCatalog(cfg.Name, catalogEntries(cfg)...)
		broker = messaging.NewStationBroker(messaging.BrokerConfig{
			BrokerURL:        cfg.MQTT.URL,
			ClientName:       cfg.MQTT.ClientName,
			TopicPrefix:      cfg.MQTT.TopicPrefix,
			ConnectTimeout:   10 * time.Second,
			PublishTimeout:   5 * time.Second,
			SubscribeTimeout: 5 * time.Second,
		}, cat.OnConnectPublisher(cfg.MQTT.TopicPrefix+"/catalog"), cfg.HeartbeatInterval())

		if err := broker.Connect(ctx); err != nil {
			logging.Warn("MQTT connect failed, retrying in background", "broker", cfg.MQTT.URL, "error", err)
		}
		defer broker.Close(context.Background())
		opts = append(opts, station.WithPublisher(broker))
	}

	st, err := station.FromConfig(cfg, []device.Option{device.WithObserver(m)}, opts...)
	if err != nil {
		logging.Fatal("Station init failed", "error", err)
	}
	if broker != nil {
		if err := broker.StartCommandSubscriber(ctx, st); err != nil {
			logging.Error("Command subscription failed", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()

	// Wait for SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	logging.Info("Shutting down", "signal", s)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logging.Warn("Station did not stop in time")
	}
	logging.Info("bye")
}

func catalogEntries(cfg *config.StationConfig) []catalog.Entry {
	var entries []catalog.Entry
	links := []struct {
		name     string
		link     config.LinkConfig
		defaults config.DeviceConfig
	}{
		{"gfr", cfg.Devices.GFR, config.FlowRegulatorDefaults()},
		{"relay", cfg.Devices.Relay, config.RelayDefaults()},
	}
	for _, l := range links {
		dc, err := l.link.LoadDevice(l.defaults)
		if err != nil {
			logging.Fatal("Device settings error", "device", l.name, "error", err)
		}
		entries = append(entries, catalog.Entry{Name: l.name, Kind: l.name, Link: l.link, Device: *dc})
	}
	return entries
}
