// Package payloadstore implements C1, the on-disk blob store backing each
// queue item's request payload. Payloads are written when an item is created
// (and rewritten when its payload is updated), read back when a job is
// submitted, and erased once the remote job completes. Unlike the queue table
// itself (internal/store), there's no need to keep these in memory: every
// operation goes straight to disk, keyed by uid.
package payloadstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is a directory of payload blobs, one file per item uid.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating payload directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// RefFor returns the path a payload for uid would live at, whether or not it
// has been written yet. Item.PayloadRef is stable across the item's
// lifetime, so callers can compute it before the first Put.
func (s *Store) RefFor(uid string) string {
	return filepath.Join(s.dir, uid+".json")
}

// Put writes data for uid, replacing any previous payload. The write goes to
// a temp file in the same directory first and is renamed into place, so a
// reader never observes a partially-written blob (the same discipline the
// osbuild-composer fsjobqueue uses for its JSON job records).
func (s *Store) Put(uid string, data []byte) error {
	ref := s.RefFor(uid)
	tmp, err := os.CreateTemp(s.dir, uid+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp payload for %s: %w", uid, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing payload for %s: %w", uid, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp payload for %s: %w", uid, err)
	}
	if err := os.Rename(tmpName, ref); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing payload for %s: %w", uid, err)
	}
	return nil
}

// Get reads back the payload for uid.
func (s *Store) Get(uid string) ([]byte, error) {
	data, err := os.ReadFile(s.RefFor(uid))
	if err != nil {
		return nil, fmt.Errorf("reading payload for %s: %w", uid, err)
	}
	return data, nil
}

// Erase removes a payload blob. Erasing a blob that's already gone is not an
// error: Complete() and a crash-recovery pass might both try it.
func (s *Store) Erase(ref string) error {
	if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("erasing payload %s: %w", ref, err)
	}
	return nil
}

// Exists reports whether a payload blob is still present.
func (s *Store) Exists(ref string) bool {
	_, err := os.Stat(ref)
	return err == nil
}
