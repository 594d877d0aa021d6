package infra

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// SelectionStore persists the locked-app selection as a JSON array under
// domain.StoreKeyLockedApps.
type SelectionStore struct {
	store  domain.SecureStore
	logger *zap.Logger
}

// NewSelectionStore creates a selection store on top of store.
func NewSelectionStore(store domain.SecureStore, logger *zap.Logger) *SelectionStore {
	return &SelectionStore{store: store, logger: logger}
}

// LoadLockedPackages returns the saved selection. A missing value is an empty
// selection. Entries that are not strings are skipped.
func (s *SelectionStore) LoadLockedPackages() ([]string, error) {
	raw, ok, err := s.store.Get(domain.StoreKeyLockedApps)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, errors.Wrap(err, "stored selection is not a JSON array")
	}

	ids := make([]string, 0, len(entries))
	for i, entry := range entries {
		var id string
		if string(entry) == "null" || json.Unmarshal(entry, &id) != nil {
			s.logger.Warn("skipping malformed stored package entry",
				zap.Int("index", i),
				zap.String("value", string(entry)))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveLockedPackages replaces the saved selection.
func (s *SelectionStore) SaveLockedPackages(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return errors.Wrap(err, "failed to encode selection")
	}
	return s.store.Set(domain.StoreKeyLockedApps, string(data))
}
