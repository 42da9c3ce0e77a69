package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSupervisor_onePerKey(t *testing.T) {
	s := NewSupervisor(context.Background())
	release := make(chan struct{})

	assert.True(t, s.Go("waiter:demo-1000", func(ctx context.Context) { <-release }))
	assert.False(t, s.Go("waiter:demo-1000", func(ctx context.Context) {}), "a second task with the same key must not start")
	assert.True(t, s.Go("waiter:demo-2000", func(ctx context.Context) {}))
	assert.True(t, s.IsRunning("waiter:demo-1000"))

	close(release)
	s.Wait()
	assert.False(t, s.IsRunning("waiter:demo-1000"))
	assert.True(t, s.Go("waiter:demo-1000", func(ctx context.Context) {}), "the key is free once the task has finished")
	s.Wait()
}

func TestSupervisor_shutdownCancelsTasks(t *testing.T) {
	s := NewSupervisor(context.Background())
	stopped := make(chan struct{})

	s.Go("broadcaster:demo-1000", func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	<-stopped
	assert.False(t, s.Go("late", func(ctx context.Context) {}), "nothing starts after shutdown")
}
