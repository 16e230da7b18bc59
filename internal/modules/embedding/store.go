package embedding

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// blobVersion guards against loading blobs written by older layouts.
const blobVersion = 2

const blobFilename = "embeddings.msgpack"

// Blob is the on-disk embedding store: a version stamp, the schema checksum
// it was built against, and the table and column vector maps. Column keys
// are "table.column".
type Blob struct {
	Version        int                  `msgpack:"version"`
	SchemaChecksum string               `msgpack:"schema_checksum"`
	EmbedderName   string               `msgpack:"embedder"`
	CreatedAt      time.Time            `msgpack:"created_at"`
	Tables         map[string][]float64 `msgpack:"tables"`
	Columns        map[string][]float64 `msgpack:"columns"`
}

// Store persists the embedding blob to a cache directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, blobFilename)
}

// Save writes the blob atomically (write temp, rename).
func (s *Store) Save(blob *Blob) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create embedding cache directory: %w", err)
	}

	data, err := msgpack.Marshal(blob)
	if err != nil {
		return fmt.Errorf("failed to encode embedding blob: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write embedding blob: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("failed to replace embedding blob: %w", err)
	}
	return nil
}

// Load reads the blob. Returns nil and false when the file is absent,
// unreadable, or from an incompatible version.
func (s *Store) Load() (*Blob, bool) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		return nil, false
	}

	var blob Blob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return nil, false
	}
	if blob.Version != blobVersion {
		return nil, false
	}
	return &blob, true
}

// Age returns how long ago the blob file was written. The second return is
// false when no blob exists.
func (s *Store) Age() (time.Duration, bool) {
	info, err := os.Stat(s.path())
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}
