package reload

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-tsrun/tsrun/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	mu              sync.Mutex
	invalidateCalls int
	rebuildCalls    int
	rebuildErr      error
	order           []string
}

func (f *fakeCoordinator) InvalidateBuildSet() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidateCalls++
	f.order = append(f.order, "invalidate")
}

func (f *fakeCoordinator) Rebuild() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuildCalls++
	f.order = append(f.order, "rebuild")
	return f.rebuildErr
}

type fakeSupervisor struct {
	mu           sync.Mutex
	restartCalls int
	stopCalls    int
	order        *[]string
}

func (f *fakeSupervisor) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartCalls++
	if f.order != nil {
		*f.order = append(*f.order, "restart")
	}
	return nil
}

func (f *fakeSupervisor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestEnqueueReloadDebouncesIntoOneBatch(t *testing.T) {
	coord := &fakeCoordinator{}
	sup := &fakeSupervisor{}
	c := New(coord, logging.Nop())
	c.SetSupervisor(sup)

	c.EnqueueReload("/repo/a.ts", false)
	c.EnqueueReload("/repo/b.ts", false)
	c.EnqueueReload("/repo/c.ts", true)

	waitFor(t, func() bool { return sup.restartCalls == 1 }, time.Second)

	assert.Equal(t, 1, coord.invalidateCalls, "invalidate should fold to true and fire once")
	assert.Equal(t, 1, coord.rebuildCalls)
	assert.Equal(t, 1, sup.restartCalls)
}

func TestReloadOrderingIsInvalidateRebuildRestart(t *testing.T) {
	coord := &fakeCoordinator{}
	var order []string
	sup := &fakeSupervisor{order: &order}
	c := New(coord, logging.Nop())
	c.SetSupervisor(sup)

	c.EnqueueReload("/repo/a.ts", true)
	waitFor(t, func() bool { return sup.restartCalls == 1 }, time.Second)

	coord.mu.Lock()
	got := append([]string{}, coord.order...)
	coord.mu.Unlock()
	got = append(got, order...)

	require.Equal(t, []string{"invalidate", "rebuild", "restart"}, got)
}

func TestBatchWithoutInvalidateSkipsInvalidate(t *testing.T) {
	coord := &fakeCoordinator{}
	sup := &fakeSupervisor{}
	c := New(coord, logging.Nop())
	c.SetSupervisor(sup)

	c.EnqueueReload("/repo/a.ts", false)
	waitFor(t, func() bool { return sup.restartCalls == 1 }, time.Second)

	assert.Equal(t, 0, coord.invalidateCalls)
	assert.Equal(t, 1, coord.rebuildCalls)
}

func TestInvalidateBuildSetAndReloadIsUnconditional(t *testing.T) {
	coord := &fakeCoordinator{}
	sup := &fakeSupervisor{}
	c := New(coord, logging.Nop())
	c.SetSupervisor(sup)

	c.InvalidateBuildSetAndReload()

	assert.Equal(t, 1, coord.invalidateCalls)
	assert.Equal(t, 1, coord.rebuildCalls)
	assert.Equal(t, 1, sup.restartCalls)
}

func TestShutdownRunsCleanupsInOrderAndStopsSupervisor(t *testing.T) {
	coord := &fakeCoordinator{}
	sup := &fakeSupervisor{}
	c := New(coord, logging.Nop())
	c.SetSupervisor(sup)

	var ran []int
	c.RegisterCleanup(func() { ran = append(ran, 1) })
	c.RegisterCleanup(func() { ran = append(ran, 2) })

	var exitCode int
	var exitCalled bool
	c.SetExit(func(code int) {
		exitCode = code
		exitCalled = true
	})

	c.Shutdown(7)

	assert.Equal(t, 1, sup.stopCalls)
	assert.Equal(t, []int{1, 2}, ran)
	assert.True(t, exitCalled)
	assert.Equal(t, 7, exitCode)
}

func TestRebuildErrorDoesNotBlockRestart(t *testing.T) {
	coord := &fakeCoordinator{rebuildErr: errors.New("boom")}
	sup := &fakeSupervisor{}
	c := New(coord, logging.Nop())
	c.SetSupervisor(sup)

	c.EnqueueReload("/repo/a.ts", false)
	waitFor(t, func() bool { return sup.restartCalls == 1 }, time.Second)
}
