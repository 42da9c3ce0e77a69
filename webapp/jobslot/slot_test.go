package jobslot

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlot_TryReserve(t *testing.T) {
	var s Slot

	ok, current := s.TryReserve("demo-1")
	assert.True(t, ok)
	assert.Equal(t, "", current)

	ok, current = s.TryReserve("demo-2")
	assert.False(t, ok)
	assert.Equal(t, "demo-1", current)
	assert.Equal(t, "demo-1", s.Get())
}

func TestSlot_TryReserve_concurrent(t *testing.T) {
	var s Slot
	var wg sync.WaitGroup
	var winners int
	var winnersMutex sync.Mutex

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := s.TryReserve(fmt.Sprintf("demo-%d", i)); ok {
				winnersMutex.Lock()
				winners += 1
				winnersMutex.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestSlot_ReleaseIf(t *testing.T) {
	var s Slot
	s.Adopt("demo-1")

	assert.False(t, s.ReleaseIf("demo-2"), "a different name must not clear the slot")
	assert.True(t, s.Is("demo-1"))
	assert.False(t, s.ReleaseIf(""))

	assert.True(t, s.ReleaseIf("demo-1"))
	assert.Equal(t, "", s.Get())
	assert.False(t, s.Is(""), "an empty slot is not 'is' anything")
}

func TestStreamSession_singleActivation(t *testing.T) {
	var s StreamSession

	first, ok := s.TryActivate("demo-1")
	assert.True(t, ok)
	assert.True(t, s.Active())
	assert.Equal(t, "demo-1", s.JobName())

	_, ok = s.TryActivate("demo-2")
	assert.False(t, ok, "a second activation must be a no-op while one is active")

	s.Deactivate()
	assert.False(t, first.Active())
	assert.False(t, s.Active())

	second, ok := s.TryActivate("demo-2")
	assert.True(t, ok)
	assert.True(t, second.Active())
	assert.False(t, first.Active(), "an old ticket never comes back to life")
}

func TestStreamSession_releaseSuperseded(t *testing.T) {
	var s StreamSession

	first, _ := s.TryActivate("demo-1")
	s.Deactivate()
	second, _ := s.TryActivate("demo-2")

	s.Release(first)
	assert.True(t, second.Active(), "releasing an old ticket must not end the current activation")
	assert.True(t, s.Active())

	s.Release(second)
	assert.False(t, s.Active())
	select {
	case <-second.Done():
	default:
		t.Error("Done() should be closed after release")
	}
}

func TestSlot_pendingReservation(t *testing.T) {
	var s Slot
	ok, _ := s.TryReserve("demo-1")
	assert.True(t, ok)

	name, pending := s.Reservation()
	assert.Equal(t, "demo-1", name)
	assert.True(t, pending, "a fresh reservation is pending creation")
	assert.False(t, s.ReleaseIfCreated("demo-1"), "a pending reservation is never treated as stale")
	assert.True(t, s.Is("demo-1"))

	assert.Equal(t, RESERVATION_HELD, s.MarkCreated("demo-1"))
	_, pending = s.Reservation()
	assert.False(t, pending)
	assert.Equal(t, RESERVATION_LOST, s.MarkCreated("demo-1"), "a reservation is only created once")

	assert.True(t, s.ReleaseIfCreated("demo-1"))
	assert.Equal(t, "", s.Get())
}

func TestSlot_RequestCancel(t *testing.T) {
	var s Slot
	assert.False(t, s.RequestCancel("demo-1"), "nothing to cancel in an empty slot")

	s.TryReserve("demo-1")
	assert.False(t, s.RequestCancel("demo-2"))
	assert.True(t, s.RequestCancel("demo-1"))
	assert.Equal(t, RESERVATION_CANCELLED, s.MarkCreated("demo-1"))
	assert.True(t, s.Is("demo-1"), "the cancelled job stays in the slot until it is confirmed gone")
	assert.False(t, s.RequestCancel("demo-1"), "a created job is cancelled by deleting it")

	s.Adopt("demo-3")
	assert.False(t, s.RequestCancel("demo-3"), "an adopted job is never pending")
}

func TestSlot_MarkCreated_lost(t *testing.T) {
	var s Slot
	s.TryReserve("demo-1")
	s.Adopt("demo-0")
	assert.Equal(t, RESERVATION_LOST, s.MarkCreated("demo-1"))
	assert.Equal(t, "demo-0", s.Get())

	var released Slot
	released.TryReserve("demo-1")
	released.ReleaseIf("demo-1")
	assert.Equal(t, RESERVATION_LOST, released.MarkCreated("demo-1"))
}
