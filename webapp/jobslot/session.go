package jobslot

import "sync"

/**
Ticket represents one activation of the log stream session.
Done() is closed when the activation ends, whoever ends it.
*/
type Ticket struct {
	JobName string
	done    chan struct{}
	once    sync.Once
}

func newTicket(jobName string) *Ticket {
	return &Ticket{JobName: jobName, done: make(chan struct{})}
}

func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

func (t *Ticket) Active() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *Ticket) stop() {
	t.once.Do(func() { close(t.done) })
}

/**
StreamSession guards the single log-streaming activation. It has its own lock, independent of Slot;
no code path holds both locks at once.
*/
type StreamSession struct {
	mutex  sync.Mutex
	active *Ticket
}

/**
activates the session for the given job. If a session is already active this is a no-op
and returns false.
*/
func (s *StreamSession) TryActivate(jobName string) (*Ticket, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.active != nil && s.active.Active() {
		return nil, false
	}
	s.active = newTicket(jobName)
	return s.active, true
}

/**
ends whatever activation is current
*/
func (s *StreamSession) Deactivate() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.active != nil {
		s.active.stop()
		s.active = nil
	}
}

/**
ends the given activation. If it has already been superseded, only the ticket itself is stopped.
*/
func (s *StreamSession) Release(t *Ticket) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	t.stop()
	if s.active == t {
		s.active = nil
	}
}

func (s *StreamSession) Active() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.active != nil && s.active.Active()
}

/**
the job the current activation is streaming for, or "" if there is none
*/
func (s *StreamSession) JobName() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.active == nil || !s.active.Active() {
		return ""
	}
	return s.active.JobName
}
