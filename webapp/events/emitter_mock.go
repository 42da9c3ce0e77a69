package events

import (
	"sync"
	"time"

	"github.com/guardian/jobpanel/common/models"
)

/**
records every emitted event, for tests
*/
type EmitterMock struct {
	mutex  sync.Mutex
	events []Event
}

func (m *EmitterMock) Emit(ev Event) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events = append(m.events, ev)
}

func (m *EmitterMock) Events() []Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	rtn := make([]Event, len(m.events))
	copy(rtn, m.events)
	return rtn
}

/**
the statuses of all status_update events so far, in order
*/
func (m *EmitterMock) Statuses() []models.EventStatus {
	rtn := make([]models.EventStatus, 0)
	for _, ev := range m.Events() {
		if ev.Name == STATUS_UPDATE {
			rtn = append(rtn, ev.Status)
		}
	}
	return rtn
}

/**
the messages of all log_update events so far, in order
*/
func (m *EmitterMock) LogLines() []string {
	rtn := make([]string, 0)
	for _, ev := range m.Events() {
		if ev.Name == LOG_UPDATE {
			rtn = append(rtn, ev.Message)
		}
	}
	return rtn
}

/**
polls until an event matching the predicate has been emitted or the timeout expires
*/
func (m *EmitterMock) WaitFor(predicate func(ev Event) bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		for _, ev := range m.Events() {
			if predicate(ev) {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (m *EmitterMock) WaitForStatus(status models.EventStatus, timeout time.Duration) bool {
	return m.WaitFor(func(ev Event) bool {
		return ev.Name == STATUS_UPDATE && ev.Status == status
	}, timeout)
}
