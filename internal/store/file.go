package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"thinkora-client/internal/model"
)

// fileDocument is the on-disk layout; it mirrors the three entries the
// browser build kept in localStorage.
type fileDocument struct {
	AccessToken  string             `json:"access_token,omitempty"`
	RefreshToken string             `json:"refresh_token,omitempty"`
	Profile      *model.UserProfile `json:"profile,omitempty"`
}

// FileBackend keeps one JSON document per slot. Writes go to a temp file
// that is renamed over the target, so readers see either the old or the
// new document.
type FileBackend struct {
	path   string
	sealer *sealer
	mu     sync.Mutex
}

// NewFileBackend stores the session at path. A non-empty passphrase seals
// the document at rest.
func NewFileBackend(path string, passphrase string) (*FileBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("session file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	b := &FileBackend{path: path}
	if passphrase != "" {
		b.sealer = newSealer(passphrase)
	}
	return b, nil
}

func (b *FileBackend) Name() string {
	if b.sealer != nil {
		return "file+sealed"
	}
	return "file"
}

func (b *FileBackend) WriteCredential(_ context.Context, accessToken string, refreshToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.readLocked()
	if err != nil {
		// An unreadable document is replaced rather than patched.
		doc = fileDocument{}
	}
	doc.AccessToken = accessToken
	doc.RefreshToken = refreshToken
	return b.writeLocked(doc)
}

func (b *FileBackend) WriteProfile(_ context.Context, profile model.UserProfile) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.readLocked()
	if err != nil {
		return err
	}
	if doc.AccessToken == "" {
		return nil
	}
	doc.Profile = &profile
	return b.writeLocked(doc)
}

func (b *FileBackend) Read(_ context.Context) (Entries, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.readLocked()
	if err != nil {
		return Entries{}, err
	}
	return Entries{AccessToken: doc.AccessToken, RefreshToken: doc.RefreshToken, Profile: doc.Profile}, nil
}

func (b *FileBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) readLocked() (fileDocument, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileDocument{}, nil
	}
	if err != nil {
		return fileDocument{}, fmt.Errorf("read session file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fileDocument{}, nil
	}

	if b.sealer != nil {
		data, err = b.sealer.open(data)
		if err != nil {
			return fileDocument{}, fmt.Errorf("unseal session file: %w", err)
		}
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fileDocument{}, fmt.Errorf("decode session file: %w", err)
	}
	return doc, nil
}

func (b *FileBackend) writeLocked(doc fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	if b.sealer != nil {
		data, err = b.sealer.seal(data)
		if err != nil {
			return fmt.Errorf("seal session file: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
