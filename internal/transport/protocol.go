// Package transport carries bridge commands over a WebSocket so the UI (or
// the CLI standing in for it) can drive the daemon.
package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Command methods understood by the server.
const (
	MethodSetLockedPackages         = "setLockedPackages"
	MethodStartOverlayService       = "startOverlayService"
	MethodStopOverlayService        = "stopOverlayService"
	MethodCheckOverlayPermission    = "checkOverlayPermission"
	MethodRequestOverlayPermission  = "requestOverlayPermission"
	MethodOpenAccessibilitySettings = "openAccessibilitySettings"
	MethodUnlock                    = "unlock"
	MethodLock                      = "lock"
	MethodStatus                    = "status"
)

// Request is one command sent by the client.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers the request with the same ID.
type Response struct {
	ID     uint64          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// UnlockParams are the params of MethodUnlock.
type UnlockParams struct {
	Tag string `json:"tag"`
}

// StatusResult is the result of MethodStatus.
type StatusResult struct {
	Running    bool     `json:"running"`
	Selection  []string `json:"selection"`
	Foreground string   `json:"foreground,omitempty"`
	Previous   string   `json:"previous,omitempty"`
	Overlay    string   `json:"overlay,omitempty"`
	Pending    int      `json:"pending"`
}

// decodePackages reads a JSON array of package identifiers entry by entry.
// Entries that are not strings are skipped and logged.
func decodePackages(raw json.RawMessage, logger *zap.Logger) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("params must be an array of package identifiers: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for i, entry := range entries {
		var id string
		if strings.TrimSpace(string(entry)) == "null" {
			logger.Warn("skipping null package entry", zap.Int("index", i))
			continue
		}
		if err := json.Unmarshal(entry, &id); err != nil {
			logger.Warn("skipping non-string package entry",
				zap.Int("index", i),
				zap.String("value", string(entry)))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
