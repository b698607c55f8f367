package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Backend resolves opaque chunk references to byte storage. The uploader and
// transport never learn which backend is active; references are whatever the
// backend handed out when the chunk was stored.
type Backend interface {
	// Open returns a reader over the chunk bytes.
	Open(ref string) (io.ReadCloser, error)
	// Stat returns the stored size in bytes.
	Stat(ref string) (int64, error)
	// Store persists the chunk bytes under ref, replacing any previous content.
	Store(ref string, data io.Reader) (int64, error)
	// Remove deletes the chunk bytes. Missing refs are not an error.
	Remove(ref string) error
}

// ErrInvalidRef indicates a reference that the backend refuses to resolve.
var ErrInvalidRef = errors.New("invalid blob reference")

// Filesystem stores chunk blobs as files under a root directory. References
// are slash-separated paths relative to the root.
type Filesystem struct {
	root string
}

// NewFilesystem constructs a filesystem backend rooted at dir.
func NewFilesystem(dir string) *Filesystem {
	return &Filesystem{root: dir}
}

func (f *Filesystem) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidRef
	}
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes backend root", ErrInvalidRef, ref)
	}
	return filepath.Join(f.root, cleaned), nil
}

func (f *Filesystem) Open(ref string) (io.ReadCloser, error) {
	path, err := f.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", ref, err)
	}
	return file, nil
}

func (f *Filesystem) Stat(ref string) (int64, error) {
	path, err := f.resolve(ref)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat blob %s: %w", ref, err)
	}
	return info.Size(), nil
}

func (f *Filesystem) Store(ref string, data io.Reader) (int64, error) {
	path, err := f.resolve(ref)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create blob directory: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create blob %s: %w", ref, err)
	}
	written, err := io.Copy(file, data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write blob %s: %w", ref, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("finalize blob %s: %w", ref, err)
	}
	return written, nil
}

func (f *Filesystem) Remove(ref string) error {
	path, err := f.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob %s: %w", ref, err)
	}
	return nil
}

// Memory keeps chunk blobs in process memory. Used for tests and for
// environments without stable filesystem access.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory constructs an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Open(ref string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.blobs[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open blob %s: %w", ref, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Stat(ref string) (int64, error) {
	m.mu.RLock()
	data, ok := m.blobs[ref]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("stat blob %s: %w", ref, os.ErrNotExist)
	}
	return int64(len(data)), nil
}

func (m *Memory) Store(ref string, data io.Reader) (int64, error) {
	if strings.TrimSpace(ref) == "" {
		return 0, ErrInvalidRef
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return 0, fmt.Errorf("read blob %s: %w", ref, err)
	}
	m.mu.Lock()
	m.blobs[ref] = buf
	m.mu.Unlock()
	return int64(len(buf)), nil
}

func (m *Memory) Remove(ref string) error {
	m.mu.Lock()
	delete(m.blobs, ref)
	m.mu.Unlock()
	return nil
}

// Refs returns the stored references in sorted order. Test helper.
func (m *Memory) Refs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]string, 0, len(m.blobs))
	for ref := range m.blobs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
