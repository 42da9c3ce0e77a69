package jobslot

import "sync"

type CreationOutcome int

const (
	// the reservation is still ours and the job is now tracked as created
	RESERVATION_HELD CreationOutcome = iota
	// a cancel arrived while the job was being created; the slot still holds it
	RESERVATION_CANCELLED
	// the slot was given to another job while this one was being created
	RESERVATION_LOST
)

/**
Slot holds the name of the one job this process currently tracks, or "".
It is a cache hint only: every start decision re-derives the truth from the cluster.
A name put there by TryReserve is pending until MarkCreated, since the job does not exist in the
cluster yet and must not be mistaken for a stale entry.
Callers get atomic check-and-set operations and never a read-then-write pair.
*/
type Slot struct {
	mutex           sync.Mutex
	name            string
	pending         bool
	cancelRequested bool
}

func (s *Slot) Get() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.name
}

/**
returns the current name and whether it is a reservation whose job has not been created yet
*/
func (s *Slot) Reservation() (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.name, s.pending
}

func (s *Slot) Is(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return name != "" && s.name == name
}

/**
adopts the given name unconditionally; used when the cluster tells us which job is really active
*/
func (s *Slot) Adopt(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.name = name
	s.pending = false
	s.cancelRequested = false
}

/**
sets the slot to `name` only if it is empty, marking it pending creation.
Returns false and the current occupant if it was not empty.
*/
func (s *Slot) TryReserve(name string) (bool, string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.name != "" {
		return false, s.name
	}
	s.name = name
	s.pending = true
	s.cancelRequested = false
	return true, ""
}

/**
called once the reserved job exists in the cluster. Tells the caller whether it still owns the slot
and whether a cancel was requested in the meantime.
*/
func (s *Slot) MarkCreated(name string) CreationOutcome {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if name == "" || s.name != name || !s.pending {
		return RESERVATION_LOST
	}
	s.pending = false
	if s.cancelRequested {
		s.cancelRequested = false
		return RESERVATION_CANCELLED
	}
	return RESERVATION_HELD
}

/**
flags a pending reservation for cancellation once its job has been created.
Returns false if `name` is not a pending reservation, i.e. the job already exists or the slot moved on.
*/
func (s *Slot) RequestCancel(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if name == "" || s.name != name || !s.pending {
		return false
	}
	s.cancelRequested = true
	return true
}

/**
clears the slot only if it still names the given job. Returns true if it was cleared.
*/
func (s *Slot) ReleaseIf(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if name == "" || s.name != name {
		return false
	}
	s.name = ""
	s.pending = false
	s.cancelRequested = false
	return true
}

/**
like ReleaseIf, but leaves a pending reservation alone. Used when clearing what looks like a stale
entry, since a pending job is expected to be missing from the cluster.
*/
func (s *Slot) ReleaseIfCreated(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if name == "" || s.name != name || s.pending {
		return false
	}
	s.name = ""
	s.cancelRequested = false
	return true
}
