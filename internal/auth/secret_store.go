package auth

// file: internal/auth/secret_store.go

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/zalando/go-keyring"
)

// KeyringService is the service name secrets are filed under in the OS keyring.
const KeyringService = "toolrelay"

// LLMAPIKey is the secret key holding the text-generation API key.
const LLMAPIKey = "llm-api-key"

// SecretStore holds named secrets. Get returns "" and no error for unknown keys.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// KeyringStore keeps secrets in the OS keyring.
type KeyringStore struct {
	service string
	logger  logging.Logger
}

var _ SecretStore = (*KeyringStore)(nil)

// NewKeyringStore creates a keyring-backed store.
func NewKeyringStore(logger logging.Logger) *KeyringStore {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &KeyringStore{service: KeyringService, logger: logger.WithField("component", "keyring_store")}
}

// IsAvailable reports whether the OS keyring can be reached. A missing entry still counts as reachable.
func (s *KeyringStore) IsAvailable() bool {
	_, err := keyring.Get(s.service, LLMAPIKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		s.logger.Warn("Keyring service is inaccessible or permissions are insufficient.", "error", err)
		return false
	}
	return true
}

// Get implements SecretStore.
func (s *KeyringStore) Get(key string) (string, error) {
	value, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			s.logger.Debug("No secret found in system keyring.", "key", key)
			return "", nil
		}
		s.logger.Error("keyring.Get operation failed.", "key", key, "error", fmt.Sprintf("%+v", err))
		return "", errors.Wrapf(err, "failed to load secret %q from system keyring", key)
	}
	return value, nil
}

// Set implements SecretStore.
func (s *KeyringStore) Set(key, value string) error {
	if value == "" {
		return errors.New("cannot store empty secret")
	}
	if err := keyring.Set(s.service, key, value); err != nil {
		s.logger.Error("keyring.Set operation failed.", "key", key, "error", fmt.Sprintf("%+v", err))
		return errors.Wrapf(err, "failed to save secret %q to system keyring", key)
	}
	s.logger.Info("Secret saved to system keyring.", "key", key)
	return nil
}

// Delete implements SecretStore.
func (s *KeyringStore) Delete(key string) error {
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrapf(err, "failed to delete secret %q from system keyring", key)
	}
	return nil
}

// NewSecretStore prefers the OS keyring and falls back to files under fallbackDir.
func NewSecretStore(fallbackDir string, logger logging.Logger) (SecretStore, error) {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	ks := NewKeyringStore(logger)
	if ks.IsAvailable() {
		logger.Debug("Using system keyring for secrets.")
		return ks, nil
	}
	logger.Info("System keyring not available, falling back to file-based secrets.", "path", fallbackDir)
	return NewFileStore(fallbackDir)
}

// ResolveSecret returns configured when it is set, otherwise the stored value for key.
func ResolveSecret(configured string, store SecretStore, key string) (string, error) {
	if configured != "" || store == nil {
		return configured, nil
	}
	return store.Get(key)
}
