// Package x11 provides the focus source, overlay window manager and draw
// check for X11 desktops.
package x11

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ErrNotStarted is returned when the session has no display connection.
var ErrNotStarted = errors.New("x11 session not started")

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_PID",
	"_NET_WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// Session is one connection to the X server. It delivers focus changes
// (domain.FocusSource) and attaches the lock overlay (domain.WindowManager,
// domain.ContentFactory) on the same connection.
type Session struct {
	display string
	names   NameResolver
	logger  *zap.Logger
	events  chan domain.FocusEvent

	mu       sync.Mutex
	conn     *xgb.Conn
	screen   *xproto.ScreenInfo
	atoms    map[string]xproto.Atom
	overlays map[xproto.Window]*OverlayWindow
	started  bool
	stopped  chan struct{}
	loopDone chan struct{}
	lastID   string
}

// NewSession creates a session for display (empty means $DISPLAY).
func NewSession(display string, names NameResolver, logger *zap.Logger) *Session {
	return &Session{
		display:  display,
		names:    names,
		logger:   logger,
		events:   make(chan domain.FocusEvent, 64),
		overlays: make(map[xproto.Window]*OverlayWindow),
	}
}

// Available reports whether an X display is configured.
func (s *Session) Available() (bool, string) {
	if s.display != "" {
		return true, ""
	}
	if os.Getenv("DISPLAY") == "" {
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return false, "wayland session without XWayland DISPLAY"
		}
		return false, "DISPLAY is not set"
	}
	return true, ""
}

// Start connects, subscribes to active window changes on the root window and
// emits the currently focused application. Events flow until Stop; a session
// starts once.
func (s *Session) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("x11 session already started")
	}
	if ok, reason := s.Available(); !ok {
		return fmt.Errorf("x11 unavailable: %s", reason)
	}

	conn, err := xgb.NewConnDisplay(s.display)
	if err != nil {
		return fmt.Errorf("failed to connect to X display: %w", err)
	}

	atoms, err := internAtoms(conn, atomNames)
	if err != nil {
		conn.Close()
		return err
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	err = xproto.ChangeWindowAttributesChecked(conn, screen.Root,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to watch root window: %w", err)
	}

	s.started = true
	s.conn = conn
	s.screen = screen
	s.atoms = atoms
	s.stopped = make(chan struct{})
	s.loopDone = make(chan struct{})

	go s.loop(conn, s.stopped, s.loopDone)

	s.logger.Info("x11 focus source started",
		zap.String("display", s.display),
		zap.Uint16("width", screen.WidthInPixels),
		zap.Uint16("height", screen.HeightInPixels))
	return nil
}

// Events returns the focus stream. It is closed after Stop.
func (s *Session) Events() <-chan domain.FocusEvent {
	return s.events
}

// Stop closes the connection. The server destroys the overlay windows with it.
func (s *Session) Stop() error {
	s.mu.Lock()
	conn, stopped, loopDone := s.conn, s.stopped, s.loopDone
	s.conn = nil
	s.overlays = make(map[xproto.Window]*OverlayWindow)
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(stopped)
	conn.Close()
	<-loopDone
	return nil
}

func (s *Session) loop(conn *xgb.Conn, stopped <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(s.events)

	s.emitActive(conn, stopped)

	for {
		ev, err := conn.WaitForEvent()
		if ev == nil && err == nil {
			// Connection closed.
			return
		}
		if err != nil {
			s.logger.Debug("x11 error", zap.Error(err))
			continue
		}

		switch e := ev.(type) {
		case xproto.PropertyNotifyEvent:
			if e.Atom == s.atom("_NET_ACTIVE_WINDOW") {
				s.emitActive(conn, stopped)
			}
		case xproto.ExposeEvent:
			if e.Count == 0 {
				s.redraw(e.Window)
			}
		}
	}
}

// emitActive publishes the application owning the active window.
func (s *Session) emitActive(conn *xgb.Conn, stopped <-chan struct{}) {
	info, err := s.activeWindow(conn)
	if err != nil {
		s.logger.Debug("failed to read active window", zap.Error(err))
		return
	}
	if s.isOverlay(info.id) {
		return
	}

	id := packageID(info, s.names)
	if id == "" {
		return
	}

	kind := domain.EventWindowStateChanged
	if id == s.lastID {
		// Focus moved between windows of the same application.
		kind = domain.EventWindowContentChanged
	}
	s.lastID = id

	select {
	case s.events <- domain.FocusEvent{Kind: kind, Package: id, At: time.Now()}:
	case <-stopped:
	}
}

func (s *Session) activeWindow(conn *xgb.Conn) (windowInfo, error) {
	root := s.rootWindow()
	reply, err := xproto.GetProperty(conn, false, root, s.atom("_NET_ACTIVE_WINDOW"), xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return windowInfo{}, err
	}
	w := decodeWindow(reply.Value)
	if w == 0 {
		return windowInfo{}, errors.New("no active window")
	}

	info := windowInfo{id: w}
	if r, err := xproto.GetProperty(conn, false, w, s.atom("_NET_WM_PID"), xproto.AtomCardinal, 0, 1).Reply(); err == nil {
		info.pid = decodeCardinal(r.Value)
	}
	if r, err := xproto.GetProperty(conn, false, w, xproto.AtomWmClass, xproto.AtomString, 0, 256).Reply(); err == nil {
		info.instance, info.class = parseWMClass(r.Value)
	}
	return info, nil
}

func (s *Session) atom(name string) xproto.Atom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atoms[name]
}

func (s *Session) rootWindow() xproto.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen == nil {
		return 0
	}
	return s.screen.Root
}

func (s *Session) isOverlay(w xproto.Window) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.overlays[w]
	return ok
}

func internAtoms(conn *xgb.Conn, names []string) (map[string]xproto.Atom, error) {
	atoms := make(map[string]xproto.Atom, len(names))
	for _, name := range names {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to intern %s: %w", name, err)
		}
		atoms[name] = reply.Atom
	}
	return atoms, nil
}

// Ensure Session implements domain.FocusSource.
var _ domain.FocusSource = (*Session)(nil)
