package x11

import (
	"errors"
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const (
	overlayTitle   = "applock"
	overlayMessage = "This app is locked. Scan your tag to unlock."
	overlayFont    = "fixed"
)

// OverlayWindow is the lock screen: an override-redirect window covering the
// screen, created unmapped.
type OverlayWindow struct {
	id      xproto.Window
	gc      xproto.Gcontext
	mapped  bool
	message string
}

// Describe implements domain.OverlayContent.
func (o *OverlayWindow) Describe() string {
	return fmt.Sprintf("x11 window 0x%x", uint32(o.id))
}

// NewOverlayContent creates the overlay window.
func (s *Session) NewOverlayContent() (domain.OverlayContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrNotStarted
	}
	conn, screen := s.conn, s.screen

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate window id: %w", err)
	}

	// Value list order follows the bit order of the mask.
	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{screen.BlackPixel, 1, xproto.EventMaskExposure}
	err = xproto.CreateWindowChecked(conn, screen.RootDepth, wid, screen.Root,
		0, 0, screen.WidthInPixels, screen.HeightInPixels, 0,
		xproto.WindowClassInputOutput, screen.RootVisual, mask, values).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay window: %w", err)
	}

	xproto.ChangeProperty(conn, xproto.PropModeReplace, wid, xproto.AtomWmName,
		xproto.AtomString, 8, uint32(len(overlayTitle)), []byte(overlayTitle))

	gc, err := newTextGC(conn, screen, wid)
	if err != nil {
		s.logger.Warn("overlay text disabled", zap.Error(err))
	}

	o := &OverlayWindow{id: wid, gc: gc, message: overlayMessage}
	s.overlays[wid] = o
	return o, nil
}

// AddOverlay maps the overlay above all other windows.
func (s *Session) AddOverlay(content domain.OverlayContent, params domain.LayoutParams) domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, res := s.lookup(content)
	if !res.OK() {
		return res
	}
	if o.mapped {
		return domain.Failure(domain.ReasonAlreadyAttached, nil)
	}

	x, y, w, h := geometry(params, s.screen.WidthInPixels, s.screen.HeightInPixels)
	xproto.ConfigureWindow(s.conn, o.id,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight|xproto.ConfigWindowStackMode,
		[]uint32{uint32(x), uint32(y), uint32(w), uint32(h), xproto.StackModeAbove})

	if err := xproto.MapWindowChecked(s.conn, o.id).Check(); err != nil {
		return domain.Failure(domain.ReasonUnavailable, err)
	}
	o.mapped = true
	return domain.Success
}

// RemoveOverlay unmaps the overlay.
func (s *Session) RemoveOverlay(content domain.OverlayContent) domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, res := s.lookup(content)
	if !res.OK() {
		return res
	}
	if !o.mapped {
		return domain.Failure(domain.ReasonNotAttached, nil)
	}

	if err := xproto.UnmapWindowChecked(s.conn, o.id).Check(); err != nil {
		return domain.Failure(domain.ReasonUnavailable, err)
	}
	o.mapped = false
	return domain.Success
}

// lookup resolves content to a live overlay window. Callers hold s.mu.
func (s *Session) lookup(content domain.OverlayContent) (*OverlayWindow, domain.Result) {
	if s.conn == nil {
		return nil, domain.Failure(domain.ReasonUnavailable, ErrNotStarted)
	}
	o, ok := content.(*OverlayWindow)
	if !ok || o == nil {
		return nil, domain.Failure(domain.ReasonUnknown, errors.New("content is not an x11 overlay"))
	}
	if s.overlays[o.id] != o {
		// Windows from an earlier connection died with it.
		return nil, domain.Failure(domain.ReasonNotAttached, errors.New("overlay window is gone"))
	}
	return o, domain.Success
}

// redraw paints the lock message after an expose.
func (s *Session) redraw(w xproto.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.overlays[w]
	if !ok || s.conn == nil || o.gc == 0 {
		return
	}
	msg := o.message
	if len(msg) > 255 {
		msg = msg[:255]
	}
	// The "fixed" font is 6 pixels wide.
	x := int16(s.screen.WidthInPixels/2) - int16(len(msg)*3)
	y := int16(s.screen.HeightInPixels / 2)
	xproto.ImageText8(s.conn, byte(len(msg)), xproto.Drawable(o.id), o.gc, x, y, msg)
}

func newTextGC(conn *xgb.Conn, screen *xproto.ScreenInfo, wid xproto.Window) (xproto.Gcontext, error) {
	font, err := xproto.NewFontId(conn)
	if err != nil {
		return 0, err
	}
	if err := xproto.OpenFontChecked(conn, font, uint16(len(overlayFont)), overlayFont).Check(); err != nil {
		return 0, err
	}
	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		return 0, err
	}
	err = xproto.CreateGCChecked(conn, gc, xproto.Drawable(wid),
		xproto.GcForeground|xproto.GcBackground|xproto.GcFont,
		[]uint32{screen.WhitePixel, screen.BlackPixel, uint32(font)}).Check()
	if err != nil {
		return 0, err
	}
	xproto.CloseFont(conn, font)
	return gc, nil
}

// geometry resolves layout params against the screen size.
func geometry(params domain.LayoutParams, screenW, screenH uint16) (x, y int16, w, h uint16) {
	w, h = screenW, screenH
	if params.Width > 0 && params.Width < int(screenW) {
		w = uint16(params.Width)
	}
	if params.Height > 0 && params.Height < int(screenH) {
		h = uint16(params.Height)
	}
	switch params.Gravity {
	case domain.GravityTop:
		x = int16((screenW - w) / 2)
	default:
		x = int16((screenW - w) / 2)
		y = int16((screenH - h) / 2)
	}
	return x, y, w, h
}

// Ensure Session implements the overlay collaborators.
var (
	_ domain.WindowManager  = (*Session)(nil)
	_ domain.ContentFactory = (*Session)(nil)
)
