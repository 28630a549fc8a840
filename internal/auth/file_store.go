package auth

// file: internal/auth/file_store.go

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// FileStore keeps secrets as 0600 files, one per key, under a directory.
// It is the fallback when no OS keyring is reachable.
type FileStore struct {
	dir string
}

var _ SecretStore = (*FileStore)(nil)

// NewFileStore creates the store, making dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "error creating secret directory")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.Newf("invalid secret key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Get returns the secret, or "" with no error when it was never stored.
func (s *FileStore) Get(key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "failed to read secret %q", key)
	}
	return strings.TrimSpace(string(data)), nil
}

// Set writes the secret.
func (s *FileStore) Set(key, value string) error {
	if value == "" {
		return errors.New("cannot store empty secret")
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(p, []byte(value), 0o600), "failed to write secret %q", key)
}

// Delete removes the secret. A missing secret is not an error.
func (s *FileStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete secret %q", key)
	}
	return nil
}
