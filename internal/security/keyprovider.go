package security

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// KeySize is the content key length in bytes (256 bits).
const KeySize = 32

// FileKeyProvider supplies the single durable symmetric content key.
// The key is generated on first use, written to a 0600 file, and returned
// unchanged on every subsequent call and across process restarts. No
// rotation, no multi-key support.
type FileKeyProvider struct {
	path string

	mu  sync.Mutex
	key []byte
}

// NewFileKeyProvider creates a provider backed by the key file at path.
// Nothing is read or written until GetOrCreate is called.
func NewFileKeyProvider(path string) (*FileKeyProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("key file path must not be empty")
	}
	return &FileKeyProvider{path: path}, nil
}

// GetOrCreate returns the existing key, or generates and durably stores a
// new one on first use. The returned slice is a copy; callers cannot
// corrupt the cached key.
func (p *FileKeyProvider) GetOrCreate() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return cloneKey(p.key), nil
	}

	data, err := os.ReadFile(p.path)
	switch {
	case err == nil:
		if len(data) != KeySize {
			return nil, fmt.Errorf("key file %s: unexpected length %d, want %d", p.path, len(data), KeySize)
		}
		p.key = data
		return cloneKey(p.key), nil
	case os.IsNotExist(err):
		// fall through to generation
	default:
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(p.path, key, 0600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	p.key = key
	return cloneKey(p.key), nil
}

// Zeroize clears the cached key bytes from memory. Call on shutdown.
// The durable key file is untouched.
func (p *FileKeyProvider) Zeroize() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
}

func cloneKey(k []byte) []byte {
	cp := make([]byte, len(k))
	copy(cp, k)
	return cp
}
