package state

import (
	"sync"
	"time"

	"github.com/fisaks/flowctl/internal/telemetry"
)

// StationStateStore remembers the last published state per device, so state
// is only republished on change or when the heartbeat is due.
type StationStateStore interface {
	GetLast(deviceName string) (telemetry.DeviceState, time.Time, bool)
	Update(deviceName string, state telemetry.DeviceState)
	HasChanged(deviceName string, state telemetry.DeviceState) bool
	NeedsPublish(deviceName string, state telemetry.DeviceState, heartbeat time.Duration) bool
	Clear()
}

type stationStateStore struct {
	store     map[string]telemetry.DeviceState
	heartbeat map[string]time.Time
	mu        sync.RWMutex
	now       func() time.Time
}

func NewStationStateStore() StationStateStore {
	return newStore(time.Now)
}

func newStore(now func() time.Time) *stationStateStore {
	return &stationStateStore{
		store:     make(map[string]telemetry.DeviceState),
		heartbeat: make(map[string]time.Time),
		now:       now,
	}
}

func (s *stationStateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[string]telemetry.DeviceState)
	s.heartbeat = make(map[string]time.Time)
}

func (s *stationStateStore) GetLast(deviceName string) (telemetry.DeviceState, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.store[deviceName]
	heartbeat, ok2 := s.heartbeat[deviceName]
	return state, heartbeat, ok && ok2
}

func (s *stationStateStore) Update(deviceName string, state telemetry.DeviceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[deviceName] = state
	s.heartbeat[deviceName] = s.now()
}

func (s *stationStateStore) HasChanged(deviceName string, state telemetry.DeviceState) bool {
	lastState, _, ok := s.GetLast(deviceName)
	if !ok {
		return true
	}
	return !deviceStateEqual(lastState, state)
}

// NeedsPublish is true when state differs from the last published one or the
// last publish is older than heartbeat. A zero heartbeat disables the latter.
func (s *stationStateStore) NeedsPublish(deviceName string, state telemetry.DeviceState, heartbeat time.Duration) bool {
	if s.HasChanged(deviceName, state) {
		return true
	}
	if heartbeat <= 0 {
		return false
	}
	_, lastSent, _ := s.GetLast(deviceName)
	return s.now().Sub(lastSent) > heartbeat
}

// Timestamps are ignored.
func deviceStateEqual(a, b telemetry.DeviceState) bool {
	return a.Name == b.Name &&
		a.Kind == b.Kind &&
		a.State == b.State &&
		a.Connected == b.Connected &&
		a.LastError == b.LastError
}
