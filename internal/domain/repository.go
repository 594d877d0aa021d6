package domain

import (
	"context"
	"time"
)

// OverlayContent is the view attached to the window manager.
// It is built once and reused across show/hide cycles.
type OverlayContent interface {
	// Describe returns a short label for logs.
	Describe() string
}

// ContentFactory builds the overlay content.
type ContentFactory interface {
	NewOverlayContent() (OverlayContent, error)
}

// WindowManager attaches and detaches overlay windows.
// Both calls are fallible and report typed results instead of panicking.
type WindowManager interface {
	// AddOverlay attaches content above all application windows.
	AddOverlay(content OverlayContent, params LayoutParams) Result

	// RemoveOverlay detaches previously attached content.
	RemoveOverlay(content OverlayContent) Result
}

// FocusSource delivers window focus notifications from the OS.
// Events are produced on the source's own goroutine.
type FocusSource interface {
	// Start begins delivering events until ctx is canceled or Stop is called.
	Start(ctx context.Context) error

	// Events returns the notification stream. It is closed after Stop.
	Events() <-chan FocusEvent

	// Stop releases the underlying OS subscription.
	Stop() error

	// Available reports whether the source can run here, with a reason.
	Available() (bool, string)
}

// PermissionProvider wraps the OS permission APIs.
type PermissionProvider interface {
	// CanDrawOverlays reports whether overlays may be attached.
	CanDrawOverlays() (bool, error)

	// RequestOverlayPermission navigates the user to the overlay permission screen.
	// It returns once navigation was triggered; the outcome is observed later.
	RequestOverlayPermission() error

	// OpenAccessibilitySettings navigates the user to the accessibility settings.
	OpenAccessibilitySettings() error
}

// Scheduler runs delayed actions on a single serialized queue.
type Scheduler interface {
	// After schedules fn to run once d has elapsed.
	After(d time.Duration, fn func()) TaskID

	// Cancel drops a scheduled action. Canceling a fired or unknown task is a no-op.
	Cancel(id TaskID) bool
}

// MetricsRecorder receives counters from the core.
type MetricsRecorder interface {
	FocusEvent(outcome string)
	OverlayTransition(action string)
	OverlayFailure(op string, reason FailureReason)
	ScheduledAction(kind string)
	HandlerPanic()
}

// SecureStore provides encrypted key/value storage.
type SecureStore interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool, error)

	// Set stores a value, replacing any previous one.
	Set(key, value string) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider abstracts the source of the storage encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// NameOf returns the executable name of a process.
	NameOf(pid int) (string, error)

	// Terminate asks a process to exit (SIGTERM).
	Terminate(pid int) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// ServerRegistry records where the daemon listens so CLI calls can reach it.
type ServerRegistry interface {
	// Register saves the daemon's record, replacing any previous one.
	Register(rec ServerRecord) error

	// Lookup returns the current record, or nil when none is registered.
	Lookup() (*ServerRecord, error)

	// IsAlive reports whether the registered daemon process is running.
	IsAlive() (bool, error)

	// Clear removes the record.
	Clear() error

	// Path returns the record file path (for tests).
	Path() string
}
