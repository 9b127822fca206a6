package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/BioHazard786/linkdrop/internal/utils"
)

// Artifact receives the bytes of one incoming file.
type Artifact interface {
	Write(p []byte) (int, error)
	// Commit makes the file retrievable and returns where it ended up.
	Commit() (string, error)
	// Abort discards whatever was written.
	Abort() error
}

// Store creates artifacts for incoming files.
type Store interface {
	Create(name string, size int64) (Artifact, error)
}

// DiskStore writes incoming files into Dir. Partial files carry a .part
// suffix until committed, then take a unique name.
type DiskStore struct {
	Dir string
}

// NewDiskStore writes into opts.OutputDir, or the working directory when
// opts is nil or names no directory.
func NewDiskStore(opts *TransferOptions) *DiskStore {
	dir := "."
	if opts != nil && opts.OutputDir != "" {
		dir = opts.OutputDir
	}
	return &DiskStore{Dir: dir}
}

func (d *DiskStore) Create(name string, _ int64) (Artifact, error) {
	clean := utils.SanitizeFilename(name)
	if clean == "" {
		return nil, NewFileError("create file", name, ErrInvalidFile)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, NewFileError("create directory", d.Dir, err)
	}

	partial := utils.GetUniqueFilename(filepath.Join(d.Dir, clean+".part"))
	file, err := os.Create(partial)
	if err != nil {
		return nil, NewFileError("create file", clean, err)
	}

	return &FileWriter{
		File:    file,
		Name:    clean,
		target:  filepath.Join(d.Dir, clean),
		partial: partial,
	}, nil
}

// FileWriter is a DiskStore artifact.
type FileWriter struct {
	File          *os.File
	Name          string
	ReceivedBytes int64

	target  string
	partial string
}

func (w *FileWriter) Write(data []byte) (int, error) {
	n, err := w.File.Write(data)
	w.ReceivedBytes += int64(n)
	if err != nil {
		return n, NewFileError("write", w.Name, err)
	}
	return n, nil
}

func (w *FileWriter) Commit() (string, error) {
	if err := w.File.Close(); err != nil {
		return "", NewFileError("close", w.Name, err)
	}
	final := utils.GetUniqueFilename(w.target)
	if err := os.Rename(w.partial, final); err != nil {
		return "", NewFileError("rename", w.Name, err)
	}
	return final, nil
}

func (w *FileWriter) Abort() error {
	_ = w.File.Close()
	if err := os.Remove(w.partial); err != nil && !os.IsNotExist(err) {
		return NewFileError("remove", w.Name, err)
	}
	return nil
}

// MemoryStore keeps committed files in memory, keyed by name. A later file
// with the same name replaces the earlier one.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (m *MemoryStore) Create(name string, size int64) (Artifact, error) {
	return &memoryArtifact{store: m, name: name}, nil
}

// Get returns the committed bytes for name.
func (m *MemoryStore) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	return b, ok
}

// Names lists committed files in commit order.
func (m *MemoryStore) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

type memoryArtifact struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
}

func (a *memoryArtifact) Write(p []byte) (int, error) {
	return a.buf.Write(p)
}

func (a *memoryArtifact) Commit() (string, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if _, ok := a.store.files[a.name]; !ok {
		a.store.order = append(a.store.order, a.name)
	}
	a.store.files[a.name] = append([]byte{}, a.buf.Bytes()...)
	return "memory:" + a.name, nil
}

func (a *memoryArtifact) Abort() error {
	a.buf.Reset()
	return nil
}
