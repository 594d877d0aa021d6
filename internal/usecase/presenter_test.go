package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/schedule"
)

func newTestPresenter() (*OverlayPresenter, *fakeWindowManager, *fakeFactory, *recordingMetrics) {
	wm := newFakeWindowManager()
	factory := &fakeFactory{}
	metrics := newRecordingMetrics()
	p := NewOverlayPresenter(wm, factory, nil, metrics, zap.NewNop())
	return p, wm, factory, metrics
}

func TestPresenter_StartsHidden(t *testing.T) {
	p, _, _, _ := newTestPresenter()
	assert.Equal(t, domain.OverlayHidden, p.State())
}

func TestPresenter_ShowAttachesWithOverlayParams(t *testing.T) {
	p, wm, _, metrics := newTestPresenter()

	p.Show()

	assert.Equal(t, domain.OverlayShown, p.State())
	assert.Equal(t, 1, wm.attachedCount())
	assert.Equal(t, domain.OverlayLayoutParams(), wm.lastParams)
	assert.Equal(t, 1, metrics.transitions["show"])
}

func TestPresenter_ShowTwiceAttachesOnce(t *testing.T) {
	p, wm, _, _ := newTestPresenter()

	p.Show()
	p.Show()

	assert.Equal(t, domain.OverlayShown, p.State())
	assert.Equal(t, 1, wm.addCalls)
	assert.Equal(t, 1, wm.attachedCount())
}

func TestPresenter_ShowThenHideLeavesNothingAttached(t *testing.T) {
	p, wm, _, metrics := newTestPresenter()

	p.Show()
	p.Hide()

	assert.Equal(t, domain.OverlayHidden, p.State())
	assert.Equal(t, 0, wm.attachedCount())
	assert.Equal(t, 1, metrics.transitions["hide"])
}

func TestPresenter_HideWithoutShow(t *testing.T) {
	p, wm, factory, _ := newTestPresenter()

	assert.NotPanics(t, p.Hide)

	assert.Equal(t, domain.OverlayHidden, p.State())
	assert.Equal(t, 0, wm.removeCalls)
	assert.Equal(t, 0, wm.attachedCount())
	assert.Equal(t, 0, factory.built, "content is built lazily on first show")
}

func TestPresenter_ContentIsReusedAcrossCycles(t *testing.T) {
	p, wm, factory, _ := newTestPresenter()

	for i := 0; i < 3; i++ {
		p.Show()
		p.Hide()
	}

	assert.Equal(t, 1, factory.built)
	assert.Equal(t, 3, wm.addCalls)
	assert.Equal(t, 0, wm.attachedCount())
}

func TestPresenter_AttachFailures(t *testing.T) {
	tests := []struct {
		name          string
		addResults    []domain.Result
		wantState     domain.OverlayState
		wantAddCalls  int
		wantRemoves   int
		wantAttached  int
		wantFailureOp string
	}{
		{
			name:          "already attached then retry succeeds",
			addResults:    []domain.Result{domain.Failure(domain.ReasonAlreadyAttached, nil)},
			wantState:     domain.OverlayShown,
			wantAddCalls:  2,
			wantRemoves:   1,
			wantAttached:  1,
			wantFailureOp: "attach:already_attached",
		},
		{
			name: "already attached twice reconciles to shown",
			addResults: []domain.Result{
				domain.Failure(domain.ReasonAlreadyAttached, nil),
				domain.Failure(domain.ReasonAlreadyAttached, nil),
			},
			wantState:     domain.OverlayShown,
			wantAddCalls:  2,
			wantRemoves:   1,
			wantAttached:  0,
			wantFailureOp: "attach_retry:already_attached",
		},
		{
			name: "already attached then retry fails otherwise",
			addResults: []domain.Result{
				domain.Failure(domain.ReasonAlreadyAttached, nil),
				domain.Failure(domain.ReasonUnavailable, errBoom),
			},
			wantState:     domain.OverlayHidden,
			wantAddCalls:  2,
			wantRemoves:   1,
			wantAttached:  0,
			wantFailureOp: "attach_retry:unavailable",
		},
		{
			name:          "permission denied is not retried",
			addResults:    []domain.Result{domain.Failure(domain.ReasonPermissionDenied, errBoom)},
			wantState:     domain.OverlayHidden,
			wantAddCalls:  1,
			wantRemoves:   0,
			wantAttached:  0,
			wantFailureOp: "attach:permission_denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, wm, _, metrics := newTestPresenter()
			wm.addResults = tt.addResults

			assert.NotPanics(t, p.Show)

			assert.Equal(t, tt.wantState, p.State())
			assert.Equal(t, tt.wantAddCalls, wm.addCalls)
			assert.Equal(t, tt.wantRemoves, wm.removeCalls)
			assert.Equal(t, tt.wantAttached, wm.attachedCount())
			assert.Equal(t, 1, metrics.failures[tt.wantFailureOp])
		})
	}
}

func TestPresenter_DetachNotAttachedEndsHidden(t *testing.T) {
	p, wm, _, metrics := newTestPresenter()
	p.Show()
	wm.removeResults = []domain.Result{domain.Failure(domain.ReasonNotAttached, nil)}

	assert.NotPanics(t, p.Hide)

	assert.Equal(t, domain.OverlayHidden, p.State())
	assert.Equal(t, 1, metrics.failures["detach:not_attached"])
}

func TestPresenter_DetachOtherFailureEndsHidden(t *testing.T) {
	p, wm, _, _ := newTestPresenter()
	p.Show()
	wm.removeResults = []domain.Result{domain.Failure(domain.ReasonUnknown, errBoom)}

	p.Hide()

	assert.Equal(t, domain.OverlayHidden, p.State())
}

func TestPresenter_ContentBuildFailure(t *testing.T) {
	p, wm, factory, metrics := newTestPresenter()
	factory.err = errBoom

	p.Show()

	assert.Equal(t, domain.OverlayHidden, p.State())
	assert.Equal(t, 0, wm.addCalls)
	assert.Equal(t, 1, metrics.failures["build:unknown"])

	factory.err = nil
	p.Show()
	assert.Equal(t, domain.OverlayShown, p.State(), "next show retries the build")
}

func TestPresenter_ShowCancelsPendingHide(t *testing.T) {
	q := schedule.New(schedule.NewManualClock(testEpoch))
	pending := NewPendingActions(q)
	wm := newFakeWindowManager()
	p := NewOverlayPresenter(wm, &fakeFactory{}, pending, nil, zap.NewNop())

	hidden := false
	pending.ScheduleHide(0, func() { hidden = true })

	p.Show()
	q.RunDue()

	assert.False(t, hidden)
	assert.False(t, pending.HasHide())
	assert.Equal(t, domain.OverlayShown, p.State())
}

func TestPresenter_Destroy(t *testing.T) {
	p, wm, factory, _ := newTestPresenter()
	p.Show()

	p.Destroy()

	assert.Equal(t, domain.OverlayHidden, p.State())
	assert.Equal(t, 0, wm.attachedCount())

	p.Show()
	assert.Equal(t, 2, factory.built, "destroy drops the content")
}

func TestPresenter_ForceHide(t *testing.T) {
	tests := []struct {
		name          string
		leftover      bool
		removeResults []domain.Result
		wantHides     int
		wantFailures  int
	}{
		{name: "clears a leftover window", leftover: true, wantHides: 1},
		{name: "nothing attached is fine"},
		{
			name:          "detach failure still ends hidden",
			removeResults: []domain.Result{domain.Failure(domain.ReasonUnavailable, nil)},
			wantFailures:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, wm, factory, metrics := newTestPresenter()
			wm.removeResults = tt.removeResults
			if tt.leftover {
				content, err := p.ensureContent()
				assert.NoError(t, err)
				wm.attached[content] = true
			}

			p.ForceHide()

			assert.Equal(t, domain.OverlayHidden, p.State())
			assert.Equal(t, 1, wm.removeCalls, "the window manager is always asked")
			assert.Equal(t, 0, wm.attachedCount())
			assert.Equal(t, 1, factory.built)
			assert.Equal(t, tt.wantHides, metrics.transitions["hide"])
			assert.Equal(t, tt.wantFailures, metrics.failures["detach:unavailable"])
		})
	}
}

func TestPresenter_ForceHideThenShowReusesContent(t *testing.T) {
	p, wm, factory, _ := newTestPresenter()

	p.ForceHide()
	p.Show()

	assert.Equal(t, domain.OverlayShown, p.State())
	assert.Equal(t, 1, wm.attachedCount())
	assert.Equal(t, 1, factory.built)
}

func TestPresenter_ForceHideContentBuildFailure(t *testing.T) {
	p, wm, factory, metrics := newTestPresenter()
	factory.err = assert.AnError

	p.ForceHide()

	assert.Equal(t, domain.OverlayHidden, p.State())
	assert.Equal(t, 0, wm.removeCalls)
	assert.Equal(t, 1, metrics.failures["build:unknown"])
}
