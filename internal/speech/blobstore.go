package speech

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
)

// Blob name prefixes shared with the external recognition collaborator: wavs
// land under uploaded/, the collaborator moves them through processing/ and
// drops result JSON under results/.
const (
	UploadedPrefix   = "speech-extractor/uploaded/"
	ProcessingPrefix = "speech-extractor/processing/"
	ResultsPrefix    = "speech-extractor/results/"
)

// BlobStore abstracts the bucket shared with the speech recognition
// collaborator. Names use forward slashes.
type BlobStore interface {
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(name string) error
}

// DirStore is a BlobStore over a local directory tree. It stands in for the
// cloud bucket in local workflows and tests.
type DirStore struct {
	root string
}

// NewDirStore returns a DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Put writes the blob atomically, creating parent directories as needed.
func (s *DirStore) Put(name string, data []byte) error {
	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("storing blob %s: %w", name, err)
	}
	if err := renameio.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("storing blob %s: %w", name, err)
	}
	return nil
}

// Get reads a blob.
func (s *DirStore) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", name, err)
	}
	return data, nil
}

// List returns the names under prefix, sorted.
func (s *DirStore) List(prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing blobs %s: %w", prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a blob; deleting a missing blob is not an error.
func (s *DirStore) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob %s: %w", name, err)
	}
	return nil
}
