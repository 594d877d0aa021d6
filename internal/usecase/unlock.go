package usecase

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ErrNoSecret is returned when no unlock secret has been stored.
var ErrNoSecret = errors.New("no unlock secret configured")

// KeyVerifier checks presented tag identifiers against the stored secret.
type KeyVerifier struct {
	store domain.SecureStore
}

// NewKeyVerifier creates a verifier backed by store.
func NewKeyVerifier(store domain.SecureStore) *KeyVerifier {
	return &KeyVerifier{store: store}
}

// Verify reports whether tag matches the stored secret.
func (v *KeyVerifier) Verify(tag string) (bool, error) {
	secret, ok, err := v.store.Get(domain.StoreKeyUnlockSecret)
	if err != nil {
		return false, fmt.Errorf("failed to read unlock secret: %w", err)
	}
	if !ok || secret == "" {
		return false, ErrNoSecret
	}
	if tag == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(tag), []byte(secret)) == 1, nil
}

// SetSecret replaces the stored secret.
func (v *KeyVerifier) SetSecret(tag string) error {
	if tag == "" {
		return errors.New("unlock secret cannot be empty")
	}
	if err := v.store.Set(domain.StoreKeyUnlockSecret, tag); err != nil {
		return fmt.Errorf("failed to store unlock secret: %w", err)
	}
	return nil
}
