package x11

import (
	"encoding/binary"
	"strings"

	"github.com/jezek/xgb/xproto"
)

// NameResolver maps a process to its executable name.
type NameResolver interface {
	NameOf(pid int) (string, error)
}

// windowInfo is what the focus source learns about the active window.
type windowInfo struct {
	id       xproto.Window
	pid      uint32
	instance string
	class    string
}

// decodeWindow reads a 32-bit window id from a property value.
func decodeWindow(data []byte) xproto.Window {
	if len(data) < 4 {
		return 0
	}
	return xproto.Window(binary.LittleEndian.Uint32(data))
}

// decodeCardinal reads a 32-bit CARDINAL from a property value.
func decodeCardinal(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

// parseWMClass splits WM_CLASS into its instance and class parts.
func parseWMClass(data []byte) (instance, class string) {
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

// packageID names the application owning w: the process name when the
// window advertises a PID, otherwise its WM_CLASS.
func packageID(w windowInfo, names NameResolver) string {
	if w.pid != 0 && names != nil {
		if name, err := names.NameOf(int(w.pid)); err == nil && name != "" {
			return name
		}
	}
	if w.class != "" {
		return strings.ToLower(w.class)
	}
	return w.instance
}
