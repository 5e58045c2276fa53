package station

import (
	"sync"
	"time"

	"github.com/fisaks/flowctl/internal/logging"
)

type CommandPusher interface {
	PushCommand(cmd Command) bool
}

// CommandScheduler pushes commands back into the station loop after a delay.
// At most one command is pending per key.
type CommandScheduler interface {
	Schedule(key string, cmd Command, delay time.Duration)
	Pending(key string) bool
	Cancel(key string) bool
	Stop()
}

type commandScheduler struct {
	mu            sync.Mutex
	timers        map[string]*time.Timer
	commandPusher CommandPusher
}

func NewCommandScheduler(pusher CommandPusher) CommandScheduler {
	return &commandScheduler{
		timers:        make(map[string]*time.Timer),
		commandPusher: pusher,
	}
}

func (cs *commandScheduler) Schedule(key string, cmd Command, delay time.Duration) {
	cs.Cancel(key)
	if delay <= 0 {
		cs.push(cmd)
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		cs.mu.Lock()
		if cs.timers[key] == timer {
			delete(cs.timers, key)
		}
		cs.mu.Unlock()
		cs.push(cmd)
	})
	cs.timers[key] = timer
}

func (cs *commandScheduler) push(cmd Command) {
	if !cs.commandPusher.PushCommand(cmd) {
		logging.Warn("Scheduled command dropped, buffer full", "device", cmd.Device, "action", cmd.Action)
	}
}

func (cs *commandScheduler) Pending(key string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	_, ok := cs.timers[key]
	return ok
}

func (cs *commandScheduler) Cancel(key string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if timer, exists := cs.timers[key]; exists {
		timer.Stop()
		delete(cs.timers, key)
		return true
	}
	return false
}

func (cs *commandScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for key, timer := range cs.timers {
		timer.Stop()
		delete(cs.timers, key)
	}
	logging.Debug("Command scheduler stopped")
}
