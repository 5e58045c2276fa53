// Package station runs the flow regulator and the relay of one gas station:
// it polls flow, publishes device state and executes bus commands, all from
// a single loop so the controllers are only driven by one goroutine.
package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/fisaks/flowctl/internal/telemetry"
)

// Controller is the part of a device controller the station drives.
type Controller interface {
	Name() string
	State() device.ConnState
	TurnOn(ctx context.Context, p device.SerialParams) device.Status
	TurnOff() device.Status
	IsConnected() bool
	GetLastError() string
	LastErr() error
}

type FlowController interface {
	Controller
	SetFlow(setpoint float64) device.Status
	GetFlow() (device.Status, float64)
	SetGas(gasID uint16) device.Status
}

// Recorder receives the values the station observes while polling.
type Recorder interface {
	RecordFlow(device string, flow float64)
	RecordConnected(device string, connected bool)
}

type ReconnectPolicy struct {
	Enabled bool
	Min     time.Duration
	Max     time.Duration
	// Retryable decides whether the error that dropped a link is worth a
	// reconnect. Nil retries every error.
	Retryable func(error) bool
}

type Config struct {
	Name              string
	PollPeriod        time.Duration
	CommandBufferSize int
	OpenOnStart       bool
	FlowRegulator     device.SerialParams
	Relay             device.SerialParams
	Reconnect         ReconnectPolicy
}

type ZeroSignal struct{}

var Zero ZeroSignal

type Station struct {
	cfg       Config
	gfr       FlowController
	relay     Controller
	publisher telemetry.StationPublisher
	recorder  Recorder
	scheduler CommandScheduler

	cmdCh  chan Command
	pollCh chan ZeroSignal

	// owned by the run loop
	wantOn  map[string]bool
	backoff map[string]time.Duration
}

var _ telemetry.CommandSubscriber = (*Station)(nil)

type Option func(*Station)

func WithRecorder(r Recorder) Option {
	return func(s *Station) { s.recorder = r }
}

// WithPublisher replaces the default publisher, which drops everything.
func WithPublisher(p telemetry.StationPublisher) Option {
	return func(s *Station) {
		if p != nil {
			s.publisher = p
		}
	}
}

func New(cfg Config, gfr FlowController, relay Controller, opts ...Option) *Station {
	if cfg.CommandBufferSize <= 0 {
		cfg.CommandBufferSize = 16
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 500 * time.Millisecond
	}
	s := &Station{
		cfg:       cfg,
		gfr:       gfr,
		relay:     relay,
		publisher: nopPublisher{},
		cmdCh:     make(chan Command, cfg.CommandBufferSize),
		pollCh:    make(chan ZeroSignal, 1),
		wantOn:    make(map[string]bool),
		backoff:   make(map[string]time.Duration),
	}
	s.scheduler = NewCommandScheduler(s)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run polls and executes commands until ctx is done, then closes both links.
func (s *Station) Run(ctx context.Context) {
	go func() {
		t := time.NewTicker(s.cfg.PollPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case s.pollCh <- Zero: // drop if one is queued
				default:
				}
			}
		}
	}()
	logging.Info("Station started", "station", s.cfg.Name, "poll", s.cfg.PollPeriod.Milliseconds(),
		"gfrPort", s.cfg.FlowRegulator.Port, "relayPort", s.cfg.Relay.Port)

	if s.cfg.OpenOnStart {
		s.handleCommand(ctx, Command{Action: ActionOpen})
	}
	for {
		select {
		case <-ctx.Done():
			s.stop()
			return
		case cmd := <-s.cmdCh:
			s.handleCommand(ctx, cmd)
		case <-s.pollCh:
			s.pollOnce(ctx)
		}
	}
}

func (s *Station) stop() {
	s.scheduler.Stop()
	if err := s.Close(); err != nil {
		logging.Warn("Station close failed", "station", s.cfg.Name, "error", err)
	}
	logging.Info("Station stopped", "station", s.cfg.Name)
}

// Open switches the relay on, then connects the flow regulator. If the
// regulator cannot be reached the relay is switched off again.
// Open must not be called while Run is active; send an "open" command instead.
func (s *Station) Open(ctx context.Context) error {
	if s.relay.TurnOn(ctx, s.cfg.Relay) != device.StatusOK {
		return s.errorOf(s.relay)
	}
	if s.gfr.TurnOn(ctx, s.cfg.FlowRegulator) != device.StatusOK {
		err := s.errorOf(s.gfr)
		if s.relay.TurnOff() != device.StatusOK {
			err = errors.Join(err, s.errorOf(s.relay))
		}
		return err
	}
	return nil
}

// Close disconnects the flow regulator, then switches the relay off.
// Controllers that are not connected are skipped.
func (s *Station) Close() error {
	var errs []error
	for _, c := range []Controller{s.gfr, s.relay} {
		if !c.IsConnected() {
			continue
		}
		if c.TurnOff() != device.StatusOK {
			errs = append(errs, s.errorOf(c))
		}
	}
	return errors.Join(errs...)
}

func (s *Station) errorOf(c Controller) error {
	if err := c.LastErr(); err != nil {
		return err
	}
	return fmt.Errorf("%s: operation failed", c.Name())
}

func (s *Station) controller(name string) Controller {
	switch name {
	case s.gfr.Name():
		return s.gfr
	case s.relay.Name():
		return s.relay
	}
	return nil
}

func (s *Station) controllers() []Controller {
	return []Controller{s.gfr, s.relay}
}

func (s *Station) kind(c Controller) string {
	if c == Controller(s.gfr) {
		return "gfr"
	}
	return "relay"
}

func (s *Station) pollOnce(ctx context.Context) {
	if s.gfr.IsConnected() {
		st, flow := s.gfr.GetFlow()
		sample := telemetry.FlowSample{
			Timestamp: time.Now(),
			Device:    s.gfr.Name(),
			Flow:      flow,
			Status:    int(st),
		}
		if st != device.StatusOK {
			sample.Error = s.gfr.GetLastError()
			logging.Warn("Flow poll failed", "device", s.gfr.Name(), "error", sample.Error)
		} else if s.recorder != nil {
			s.recorder.RecordFlow(s.gfr.Name(), flow)
		}
		if err := s.publisher.PublishFlow(ctx, sample); err != nil {
			logging.Warn("Failed to publish flow", "device", s.gfr.Name(), "error", err)
		}
	}
	s.publishStates(ctx)
	s.checkReconnect()
}

func (s *Station) publishStates(ctx context.Context) {
	for _, c := range s.controllers() {
		connected := c.IsConnected()
		if s.recorder != nil {
			s.recorder.RecordConnected(c.Name(), connected)
		}
		ds := telemetry.DeviceState{
			Timestamp: time.Now(),
			Name:      c.Name(),
			Kind:      s.kind(c),
			State:     c.State().String(),
			Connected: connected,
			LastError: c.GetLastError(),
		}
		if err := s.publisher.PublishDeviceState(ctx, ds); err != nil {
			logging.Warn("Failed to publish state", "device", c.Name(), "error", err)
		}
	}
}

func reconnectKey(name string) string { return "reconnect:" + name }

// checkReconnect schedules a reconnect for every controller that should be
// on but lost its link.
func (s *Station) checkReconnect() {
	if !s.cfg.Reconnect.Enabled {
		return
	}
	for _, c := range s.controllers() {
		name := c.Name()
		if !s.wantOn[name] || c.IsConnected() || s.scheduler.Pending(reconnectKey(name)) {
			continue
		}
		err := c.LastErr()
		if retry := s.cfg.Reconnect.Retryable; retry != nil && !retry(err) {
			logging.Warn("Link lost, not retrying", "device", name, "error", err)
			s.wantOn[name] = false
			continue
		}
		delay := s.bumpBackoff(name)
		logging.Info("Reconnect scheduled", "device", name, "in", delay, "error", err)
		s.scheduler.Schedule(reconnectKey(name), Command{Device: name, Action: ActionReconnect}, delay)
	}
}

func (s *Station) bumpBackoff(name string) time.Duration {
	b := s.backoff[name]
	if b == 0 {
		b = s.cfg.Reconnect.Min
	} else {
		b *= 2
		if s.cfg.Reconnect.Max > 0 && b > s.cfg.Reconnect.Max {
			b = s.cfg.Reconnect.Max
		}
	}
	s.backoff[name] = b
	return b
}

func (s *Station) resetBackoff(name string) {
	delete(s.backoff, name)
	s.scheduler.Cancel(reconnectKey(name))
}

func (s *Station) paramsFor(c Controller) device.SerialParams {
	if c == Controller(s.gfr) {
		return s.cfg.FlowRegulator
	}
	return s.cfg.Relay
}

type nopPublisher struct{}

func (nopPublisher) PublishDeviceState(context.Context, telemetry.DeviceState) error { return nil }
func (nopPublisher) PublishFlow(context.Context, telemetry.FlowSample) error         { return nil }
func (nopPublisher) ClearPublishedState()                                            {}
