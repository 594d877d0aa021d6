package usecase

import (
	"errors"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/schedule"
)

// fakeContent implements domain.OverlayContent for testing
type fakeContent struct {
	name string
}

func (c *fakeContent) Describe() string { return c.name }

// fakeFactory implements domain.ContentFactory for testing
type fakeFactory struct {
	built int
	err   error
}

func (f *fakeFactory) NewOverlayContent() (domain.OverlayContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.built++
	return &fakeContent{name: "lock-overlay"}, nil
}

// fakeWindowManager implements domain.WindowManager for testing.
// Scripted results are returned first; after that it behaves like a real
// window manager over the attached set.
type fakeWindowManager struct {
	attached      map[domain.OverlayContent]bool
	addResults    []domain.Result
	removeResults []domain.Result
	addCalls      int
	removeCalls   int
	lastParams    domain.LayoutParams
}

func newFakeWindowManager() *fakeWindowManager {
	return &fakeWindowManager{attached: make(map[domain.OverlayContent]bool)}
}

func (w *fakeWindowManager) AddOverlay(c domain.OverlayContent, params domain.LayoutParams) domain.Result {
	w.addCalls++
	w.lastParams = params
	if len(w.addResults) > 0 {
		r := w.addResults[0]
		w.addResults = w.addResults[1:]
		return r
	}
	if w.attached[c] {
		return domain.Failure(domain.ReasonAlreadyAttached, nil)
	}
	w.attached[c] = true
	return domain.Success
}

func (w *fakeWindowManager) RemoveOverlay(c domain.OverlayContent) domain.Result {
	w.removeCalls++
	if len(w.removeResults) > 0 {
		r := w.removeResults[0]
		w.removeResults = w.removeResults[1:]
		return r
	}
	if !w.attached[c] {
		return domain.Failure(domain.ReasonNotAttached, nil)
	}
	delete(w.attached, c)
	return domain.Success
}

func (w *fakeWindowManager) attachedCount() int {
	return len(w.attached)
}

// recordingOverlay implements Overlay for testing
type recordingOverlay struct {
	shows     int
	hides     int
	panicShow bool
}

func (o *recordingOverlay) Show() {
	if o.panicShow {
		panic("boom")
	}
	o.shows++
}

func (o *recordingOverlay) Hide() {
	o.hides++
}

// recordingMetrics implements domain.MetricsRecorder for testing
type recordingMetrics struct {
	events      map[string]int
	transitions map[string]int
	failures    map[string]int
	actions     map[string]int
	panics      int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		events:      make(map[string]int),
		transitions: make(map[string]int),
		failures:    make(map[string]int),
		actions:     make(map[string]int),
	}
}

func (m *recordingMetrics) FocusEvent(outcome string)       { m.events[outcome]++ }
func (m *recordingMetrics) OverlayTransition(action string) { m.transitions[action]++ }
func (m *recordingMetrics) OverlayFailure(op string, reason domain.FailureReason) {
	m.failures[op+":"+reason.String()]++
}
func (m *recordingMetrics) ScheduledAction(kind string) { m.actions[kind]++ }
func (m *recordingMetrics) HandlerPanic()               { m.panics++ }

// leakyScheduler ignores cancellation so stale-action guards can be observed.
type leakyScheduler struct {
	*schedule.Queue
}

func (s leakyScheduler) Cancel(domain.TaskID) bool { return false }

// mapStore implements domain.SecureStore for testing
type mapStore struct {
	values map[string]string
	getErr error
	setErr error
}

func newMapStore() *mapStore {
	return &mapStore{values: make(map[string]string)}
}

func (s *mapStore) Get(key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *mapStore) Set(key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *mapStore) Delete(key string) error {
	delete(s.values, key)
	return nil
}

func (s *mapStore) Close() error { return nil }

var errBoom = errors.New("boom")

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
