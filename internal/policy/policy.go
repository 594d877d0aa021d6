// Package policy holds the overlay timing policy and the registry of
// "special" applications that repaint over the overlay shortly after launch.
package policy

import (
	"fmt"
	"time"
)

// Default timings. Empirically tuned against browser and video apps;
// only their ordering (very short < short < long) matters.
const (
	DefaultShortDelay     = 150 * time.Millisecond
	DefaultLongDelay      = 500 * time.Millisecond
	DefaultVeryShortDelay = 10 * time.Millisecond
	DefaultRepeats        = 5
)

// Timing decides how long the monitor waits before showing or hiding the overlay.
type Timing struct {
	Short     time.Duration // Debounce for ordinary transitions
	Long      time.Duration // Show delay and re-assertion period for special apps
	VeryShort time.Duration // Hide delay when leaving a special app
	Repeats   int           // Re-assertions scheduled after entering a special app
}

// DefaultTiming returns the default overlay timing.
func DefaultTiming() Timing {
	return Timing{
		Short:     DefaultShortDelay,
		Long:      DefaultLongDelay,
		VeryShort: DefaultVeryShortDelay,
		Repeats:   DefaultRepeats,
	}
}

// ShowDelay returns the debounce before showing the overlay over a locked app.
func (t Timing) ShowDelay(toSpecial bool) time.Duration {
	if toSpecial {
		return t.Long
	}
	return t.Short
}

// HideDelay returns the debounce before hiding the overlay.
// Hides are snappier than shows when leaving a special app.
func (t Timing) HideDelay(fromSpecial bool) time.Duration {
	if fromSpecial {
		return t.VeryShort
	}
	return t.Short
}

// ReassertDelays returns the special-app show delay times 1 .. Repeats.
func (t Timing) ReassertDelays() []time.Duration {
	if t.Repeats <= 0 {
		return nil
	}
	period := t.ShowDelay(true)
	delays := make([]time.Duration, t.Repeats)
	for i := range delays {
		delays[i] = period * time.Duration(i+1)
	}
	return delays
}

// Validate checks the timing is usable.
func (t Timing) Validate() error {
	if t.Short < 0 || t.Long < 0 || t.VeryShort < 0 {
		return fmt.Errorf("delays cannot be negative (short=%v long=%v very_short=%v)",
			t.Short, t.Long, t.VeryShort)
	}
	if t.Repeats < 0 || t.Repeats > 20 {
		return fmt.Errorf("repeats must be between 0 and 20, got %d", t.Repeats)
	}
	return nil
}
