package statestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentworkforce/omisync/internal/vault"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Snapshot is the serialized pair of documents a backend persists. A nil
// field means the document has never been saved.
type Snapshot struct {
	State []byte
	Index []byte
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{State: bytes.Clone(s.State), Index: bytes.Clone(s.Index)}
}

// Backend stores the run-state and index documents. Load returns nil with no
// error when nothing has been saved yet.
type Backend interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

type InMemoryBackend struct {
	mu       sync.Mutex
	snapshot *Snapshot
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{}
}

func (b *InMemoryBackend) Load() (*Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot.clone(), nil
}

func (b *InMemoryBackend) Save(snapshot *Snapshot) error {
	if b == nil || snapshot == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = snapshot.clone()
	return nil
}

// FileBackend keeps state.json and index.json side by side in Dir. Each file
// is replaced atomically; unchanged files are left untouched.
type FileBackend struct {
	Dir string
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{Dir: strings.TrimSpace(dir)}
}

func (b *FileBackend) statePath() string { return filepath.Join(b.Dir, vault.StateFile) }
func (b *FileBackend) indexPath() string { return filepath.Join(b.Dir, vault.IndexFile) }

func (b *FileBackend) Load() (*Snapshot, error) {
	if b == nil || b.Dir == "" {
		return nil, nil
	}
	state, err := readOptional(b.statePath())
	if err != nil {
		return nil, err
	}
	index, err := readOptional(b.indexPath())
	if err != nil {
		return nil, err
	}
	if state == nil && index == nil {
		return nil, nil
	}
	return &Snapshot{State: state, Index: index}, nil
}

func (b *FileBackend) Save(snapshot *Snapshot) error {
	if b == nil || b.Dir == "" || snapshot == nil {
		return nil
	}
	if err := writeIfChanged(b.indexPath(), snapshot.Index); err != nil {
		return err
	}
	return writeIfChanged(b.statePath(), snapshot.State)
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func writeIfChanged(path string, data []byte) error {
	if data == nil || vault.Unchanged(path, data) {
		return nil
	}
	return vault.WriteFileAtomic(path, data, 0o644)
}
