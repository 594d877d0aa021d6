package x11

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// CanDraw connects to display and reports whether an override-redirect
// window can be created there.
func CanDraw(display string) (bool, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return false, fmt.Errorf("failed to connect to X display: %w", err)
	}
	defer conn.Close()

	screen := xproto.Setup(conn).DefaultScreen(conn)
	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		return false, err
	}
	err = xproto.CreateWindowChecked(conn, screen.RootDepth, wid, screen.Root,
		0, 0, 1, 1, 0, xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwOverrideRedirect, []uint32{1}).Check()
	if err != nil {
		// Access errors mean the server refuses overlays for this client.
		if _, denied := err.(xproto.AccessError); denied {
			return false, nil
		}
		return false, err
	}
	xproto.DestroyWindow(conn, wid)
	return true, nil
}
