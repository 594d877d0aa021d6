// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"time"
)

// EventKind classifies a notification from the OS focus event source.
type EventKind int

const (
	// EventOther is any notification the monitor does not act on.
	EventOther EventKind = iota
	// EventWindowStateChanged fires when a new window gains focus.
	EventWindowStateChanged
	// EventWindowContentChanged fires on repaints inside an already focused window.
	EventWindowContentChanged
)

func (k EventKind) String() string {
	switch k {
	case EventWindowStateChanged:
		return "window_state_changed"
	case EventWindowContentChanged:
		return "window_content_changed"
	default:
		return "other"
	}
}

// FocusEvent is one notification delivered by a FocusSource.
type FocusEvent struct {
	Kind    EventKind
	Package string // Identifier of the newly focused application
	At      time.Time
}

// OverlayState is the presenter's view of the overlay window.
type OverlayState int

const (
	OverlayHidden OverlayState = iota
	OverlayShown
)

func (s OverlayState) String() string {
	if s == OverlayShown {
		return "shown"
	}
	return "hidden"
}

// FailureReason explains why a window manager call did not succeed.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	// ReasonAlreadyAttached means the content is already attached to the window manager.
	ReasonAlreadyAttached
	// ReasonNotAttached means the content was not attached when a detach was requested.
	ReasonNotAttached
	// ReasonPermissionDenied means the process may not draw overlays.
	ReasonPermissionDenied
	// ReasonUnavailable means the window manager could not be reached.
	ReasonUnavailable
	ReasonUnknown
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonAlreadyAttached:
		return "already_attached"
	case ReasonNotAttached:
		return "not_attached"
	case ReasonPermissionDenied:
		return "permission_denied"
	case ReasonUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of a window manager call.
// The zero value is success.
type Result struct {
	Reason FailureReason
	Err    error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Reason == ReasonNone && r.Err == nil
}

// Error renders the failure for logging.
func (r Result) Error() string {
	if r.OK() {
		return ""
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Reason, r.Err)
	}
	return r.Reason.String()
}

// Failure builds a failed Result. A nil err is allowed.
func Failure(reason FailureReason, err error) Result {
	if reason == ReasonNone {
		reason = ReasonUnknown
	}
	return Result{Reason: reason, Err: err}
}

// Success is the successful Result.
var Success = Result{}

// Window layout dimensions.
const (
	// MatchParent sizes a dimension to the whole screen.
	MatchParent = -1
)

// Gravity positions the overlay on screen.
type Gravity int

const (
	GravityCenter Gravity = iota
	GravityTop
)

// Layer selects the window stacking class.
type Layer int

const (
	LayerApplication Layer = iota
	// LayerOverlay renders above normal application windows.
	LayerOverlay
)

// WindowFlag is a bit set of window behaviours.
type WindowFlag uint32

const (
	// FlagNotFocusable keeps input focus with the window underneath.
	FlagNotFocusable WindowFlag = 1 << iota
	// FlagNotTouchModal lets touches outside the overlay reach other windows.
	FlagNotTouchModal
	FlagLayoutInScreen
	FlagLayoutNoLimits
)

// Has reports whether all bits of f are set.
func (w WindowFlag) Has(f WindowFlag) bool {
	return w&f == f
}

// PixelFormat selects the window surface format.
type PixelFormat int

const (
	PixelFormatOpaque PixelFormat = iota
	PixelFormatTranslucent
)

// LayoutParams describes how the overlay is attached to the window manager.
type LayoutParams struct {
	Width   int
	Height  int
	Gravity Gravity
	Layer   Layer
	Flags   WindowFlag
	Format  PixelFormat
}

// OverlayLayoutParams returns the parameters of the lock overlay:
// full screen, centered, non-focusable, not modal, topmost, translucent-capable.
func OverlayLayoutParams() LayoutParams {
	return LayoutParams{
		Width:   MatchParent,
		Height:  MatchParent,
		Gravity: GravityCenter,
		Layer:   LayerOverlay,
		Flags:   FlagNotFocusable | FlagNotTouchModal | FlagLayoutInScreen | FlagLayoutNoLimits,
		Format:  PixelFormatTranslucent,
	}
}

// TaskID identifies a scheduled action. The zero value is never issued.
type TaskID uint64

// ServerRecord stores where the running daemon can be reached.
// Persisted to a hidden file so CLI invocations can find the daemon.
type ServerRecord struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Secure storage keys shared with the UI.
const (
	// StoreKeyUnlockSecret holds the tag identifier that unlocks the device.
	StoreKeyUnlockSecret = "key"
	// StoreKeyLockedApps holds a JSON array of locked package identifiers.
	StoreKeyLockedApps = "apps"
)
