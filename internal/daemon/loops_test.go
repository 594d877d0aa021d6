package daemon

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// TestDefaultPermissionWatcherConfig verifies default permission watcher configuration
func TestDefaultPermissionWatcherConfig(t *testing.T) {
	config := DefaultPermissionWatcherConfig()
	assert.Equal(t, 2*time.Second, config.CheckInterval)
}

// TestDefaultRecordKeeperConfig verifies default record keeper configuration
func TestDefaultRecordKeeperConfig(t *testing.T) {
	config := DefaultRecordKeeperConfig()
	assert.Equal(t, 30*time.Second, config.CheckInterval)
}

type countingResolver struct {
	calls    atomic.Int32
	resolved atomic.Bool
}

func (r *countingResolver) ResolvePendingPermission() bool {
	r.calls.Add(1)
	return r.resolved.CompareAndSwap(false, true)
}

func TestPermissionWatcher_ChecksUntilCanceled(t *testing.T) {
	resolver := &countingResolver{}
	w := NewPermissionWatcher(PermissionWatcherConfig{CheckInterval: time.Millisecond}, resolver, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return resolver.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.True(t, resolver.resolved.Load())
}

// mockServerRegistry implements domain.ServerRegistry for testing
type mockServerRegistry struct {
	mu          sync.Mutex
	record      *domain.ServerRecord
	registerErr error
	registers   int
	alive       bool
}

func (r *mockServerRegistry) Register(rec domain.ServerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return r.registerErr
	}
	r.registers++
	r.record = &rec
	return nil
}

func (r *mockServerRegistry) Lookup() (*domain.ServerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record == nil {
		return nil, nil
	}
	rec := *r.record
	return &rec, nil
}

func (r *mockServerRegistry) IsAlive() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record != nil && r.alive, nil
}

func (r *mockServerRegistry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = nil
	return nil
}

func (r *mockServerRegistry) Path() string { return "/tmp/.applock.json" }

func (r *mockServerRegistry) set(rec *domain.ServerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = rec
}

func (r *mockServerRegistry) registerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registers
}

func TestRecordKeeper_RestoresAndReleases(t *testing.T) {
	registry := &mockServerRegistry{}
	record := domain.ServerRecord{PID: os.Getpid(), Addr: "127.0.0.1:7420"}
	k := NewRecordKeeper(RecordKeeperConfig{CheckInterval: time.Millisecond}, registry, record, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool { return registry.registerCount() == 1 }, time.Second, time.Millisecond)

	// Deleted record is restored.
	registry.set(nil)
	assert.Eventually(t, func() bool { return registry.registerCount() == 2 }, time.Second, time.Millisecond)

	// Foreign record is replaced.
	registry.set(&domain.ServerRecord{PID: 1, Addr: "127.0.0.1:1"})
	assert.Eventually(t, func() bool {
		rec, _ := registry.Lookup()
		return rec != nil && rec.PID == record.PID
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keeper did not stop")
	}

	rec, err := registry.Lookup()
	require.NoError(t, err)
	assert.Nil(t, rec, "own record is cleared on exit")
}

func TestRecordKeeper_RegisterFailure(t *testing.T) {
	registry := &mockServerRegistry{registerErr: assert.AnError}
	k := NewRecordKeeper(DefaultRecordKeeperConfig(), registry, domain.ServerRecord{PID: 1}, zap.NewNop())

	err := k.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWaitForServer(t *testing.T) {
	registry := &mockServerRegistry{alive: true}

	go func() {
		time.Sleep(5 * time.Millisecond)
		registry.set(&domain.ServerRecord{PID: 42, Addr: "127.0.0.1:7420"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rec, err := WaitForServer(ctx, registry, 42, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7420", rec.Addr)
}

func TestWaitForServer_Timeout(t *testing.T) {
	registry := &mockServerRegistry{alive: true}
	registry.set(&domain.ServerRecord{PID: 7})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitForServer(ctx, registry, 42, time.Millisecond)
	assert.ErrorIs(t, err, ErrServerNotReady)
}
