// internal/config/stager.go
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
)

// FileStager backs network config updates with two files: the staged
// candidate and the active config it replaces on commit. The committed
// file takes effect on the next start.
type FileStager struct {
	active string
	staged string
}

func NewFileStager(active, staged string) *FileStager {
	return &FileStager{active: active, staged: staged}
}

// Validate reports whether the staged file hashes to hash and is a valid
// config.
func (f *FileStager) Validate(hash [32]byte) bool {
	_, err := f.load(hash)
	return err == nil
}

// Commit replaces the active config with the staged one.
// The write is atomic: temp file in the same directory, then rename.
func (f *FileStager) Commit(hash [32]byte) error {
	raw, err := f.load(hash)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.active), ".meshnode-*.yaml")
	if err != nil {
		return fmt.Errorf("config stager: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("config stager: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config stager: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.active); err != nil {
		return fmt.Errorf("config stager: commit: %w", err)
	}
	return nil
}

func (f *FileStager) load(hash [32]byte) ([]byte, error) {
	raw, err := os.ReadFile(f.staged)
	if err != nil {
		return nil, fmt.Errorf("config stager: read %s: %w", f.staged, err)
	}
	if sha256.Sum256(raw) != hash {
		return nil, fmt.Errorf("config stager: staged config hash mismatch")
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config stager: %w", err)
	}
	return raw, nil
}

// HashFile returns the SHA-256 of a config file as carried in a
// ConfigUpdate proposal.
func HashFile(path string) ([32]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return sha256.Sum256(raw), nil
}
