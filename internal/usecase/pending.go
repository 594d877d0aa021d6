package usecase

import (
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// PendingActions tracks the not-yet-fired overlay actions: at most one show,
// at most one hide and the bounded re-assertions that follow a special app.
// Scheduling a show or a hide cancels everything still pending.
//
// Not goroutine-safe: it lives on the monitoring unit's loop.
type PendingActions struct {
	sched     domain.Scheduler
	show      domain.TaskID
	hide      domain.TaskID
	reasserts []domain.TaskID
}

// NewPendingActions creates an empty tracker over sched.
func NewPendingActions(sched domain.Scheduler) *PendingActions {
	return &PendingActions{sched: sched}
}

// ScheduleShow cancels all pending actions and schedules fn after d.
func (p *PendingActions) ScheduleShow(d time.Duration, fn func()) {
	p.CancelAll()
	var id domain.TaskID
	id = p.sched.After(d, func() {
		if p.show == id {
			p.show = 0
		}
		fn()
	})
	p.show = id
}

// ScheduleHide cancels all pending actions and schedules fn after d.
func (p *PendingActions) ScheduleHide(d time.Duration, fn func()) {
	p.CancelAll()
	var id domain.TaskID
	id = p.sched.After(d, func() {
		if p.hide == id {
			p.hide = 0
		}
		fn()
	})
	p.hide = id
}

// AddReassert schedules an extra show after d without canceling anything.
func (p *PendingActions) AddReassert(d time.Duration, fn func()) {
	var id domain.TaskID
	id = p.sched.After(d, func() {
		p.dropReassert(id)
		fn()
	})
	p.reasserts = append(p.reasserts, id)
}

// CancelHide drops a pending hide, if any.
func (p *PendingActions) CancelHide() bool {
	if p.hide == 0 {
		return false
	}
	canceled := p.sched.Cancel(p.hide)
	p.hide = 0
	return canceled
}

// CancelAll drops every pending action. Actions that already fired are unaffected.
func (p *PendingActions) CancelAll() {
	if p.show != 0 {
		p.sched.Cancel(p.show)
		p.show = 0
	}
	p.CancelHide()
	for _, id := range p.reasserts {
		p.sched.Cancel(id)
	}
	p.reasserts = p.reasserts[:0]
}

// Len returns the number of pending actions.
func (p *PendingActions) Len() int {
	n := len(p.reasserts)
	if p.show != 0 {
		n++
	}
	if p.hide != 0 {
		n++
	}
	return n
}

// HasShow reports whether a show is pending.
func (p *PendingActions) HasShow() bool { return p.show != 0 }

// HasHide reports whether a hide is pending.
func (p *PendingActions) HasHide() bool { return p.hide != 0 }

func (p *PendingActions) dropReassert(id domain.TaskID) {
	for i, r := range p.reasserts {
		if r == id {
			p.reasserts = append(p.reasserts[:i], p.reasserts[i+1:]...)
			return
		}
	}
}
