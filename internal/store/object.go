package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalObjectStore is a content-addressed local-disk object store: the
// in-core stand-in for the IPFS/Pinata tier original_source/ptc/ipfs.py
// describes. Those remain external collaborators per spec §1; this type
// gives ContentStore.DualStore something real to write "permanently" to
// without depending on a pinning service.
type LocalObjectStore struct {
	dir string
}

// NewLocalObjectStore ensures dir exists and returns a store rooted there.
func NewLocalObjectStore(dir string) (*LocalObjectStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("object store: create dir %s: %w", dir, err)
	}
	return &LocalObjectStore{dir: dir}, nil
}

// Add writes content under its content hash and returns a local object id.
func (l *LocalObjectStore) Add(content []byte) (string, error) {
	hash := Hash(content)
	id := "local:" + hash[len("sha256:"):]
	path := l.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("object store: create subdir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("object store: write object %s: %w", id, err)
	}
	return id, nil
}

// Get reads content previously written with Add.
func (l *LocalObjectStore) Get(id string) ([]byte, error) {
	data, err := os.ReadFile(l.pathFor(id))
	if err != nil {
		return nil, fmt.Errorf("object store: read object %s: %w", id, err)
	}
	return data, nil
}

// Pin only checks that the object exists on local disk, returning an
// error if it does not; everything written is already durable there. A
// remote pinning service would implement this as a real network call;
// that tier is out of scope here.
func (l *LocalObjectStore) Pin(id string) error {
	_, err := os.Stat(l.pathFor(id))
	if err != nil {
		return fmt.Errorf("object store: pin %s: %w", id, err)
	}
	return nil
}

func (l *LocalObjectStore) pathFor(id string) string {
	digest := strings.TrimPrefix(id, "local:")
	if len(digest) > 4 {
		return filepath.Join(l.dir, digest[:2], digest[2:4], id)
	}
	return filepath.Join(l.dir, id)
}
