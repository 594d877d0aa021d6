package infra

import (
	"os"
	"sync"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	mu          sync.Mutex
	runningPIDs map[int]bool
	names       map[int]string
	terminated  []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[pid]
	if !ok {
		return "", os.ErrNotExist
	}
	return name, nil
}

func (m *mockProcessManager) Terminate(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = running
}

var _ domain.ProcessManager = (*mockProcessManager)(nil)

// memoryStore implements domain.SecureStore in memory for testing
type memoryStore struct {
	values map[string]string
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Get(key string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memoryStore) Set(key, value string) error {
	if s.err != nil {
		return s.err
	}
	s.values[key] = value
	return nil
}

func (s *memoryStore) Delete(key string) error {
	delete(s.values, key)
	return nil
}

func (s *memoryStore) Close() error { return nil }
