// Package playstore persists play records as JSON files organized by status.
// Each play lives at <root>/<status>/<id>.json; writes use atomic replace so
// a record is either fully visible or not visible at all, and moves write
// the destination before unlinking the source so a crash can duplicate a
// record but never lose it.
package playstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"playtrader/internal/domain"
)

// Ref is a lazy reference to a stored play, as produced by List. It may go
// stale under a concurrent move; Load maps that to domain.ErrNotFound.
type Ref struct {
	ID     string
	Status domain.PlayStatus
	Path   string
}

// Store is a file-backed play store. It is safe for use by multiple
// cooperating processes sharing the same root; durability comes entirely
// from the atomic replace semantics, no in-process locks are held.
type Store struct {
	root string
	log  *slog.Logger
}

// NewStore creates a Store rooted at dir, creating one subdirectory per
// status.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	for _, st := range domain.AllStatuses {
		if err := os.MkdirAll(filepath.Join(dir, string(st)), 0o755); err != nil {
			return nil, fmt.Errorf("creating status dir %s: %w", st, err)
		}
	}
	return &Store{root: dir, log: log}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// playPath returns the record location for a play ID in a status area.
func (s *Store) playPath(status domain.PlayStatus, id string) string {
	return filepath.Join(s.root, string(status), id+".json")
}

// Put durably writes the play into the directory matching its current
// status, replacing any existing record at that path.
func (s *Store) Put(play *domain.Play) error {
	if err := play.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid play %s: %w", play.ID, err)
	}
	data, err := json.MarshalIndent(play, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling play %s: %w", play.ID, err)
	}
	path := s.playPath(play.Status.PlayStatus, play.ID)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing play %s: %w", play.ID, err)
	}
	return nil
}

// Move relocates a play between status areas, updating its status envelope.
// The destination record is written and durable before the source is
// deleted, so a crash mid-move leaves the play duplicated rather than lost;
// readers deduplicate by ID. A failed destination write leaves the source
// untouched.
func (s *Store) Move(play *domain.Play, from, to domain.PlayStatus) error {
	oldPath := s.playPath(from, play.ID)
	play.Status.PlayStatus = to
	if err := s.Put(play); err != nil {
		play.Status.PlayStatus = from
		return fmt.Errorf("move %s -> %s: %w", from, to, err)
	}
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		// The new record is already durable; log and carry on. The duplicate
		// is cleaned up on the next move or by an operator.
		s.log.Warn("removing old play record after move",
			"play", play.ID, "from", from, "to", to, "error", err)
	}
	return nil
}

// List enumerates the plays currently stored under a status. It never
// blocks on record content and tolerates races with concurrent moves:
// callers must treat transient absence or duplication as normal.
func (s *Store) List(status domain.PlayStatus) ([]Ref, error) {
	dir := filepath.Join(s.root, string(status))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", status, err)
	}

	var refs []Ref
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		refs = append(refs, Ref{
			ID:     strings.TrimSuffix(name, ".json"),
			Status: status,
			Path:   filepath.Join(dir, name),
		})
	}
	return refs, nil
}

// Load reads and validates the play behind a reference. A missing file
// returns domain.ErrNotFound so pollers degrade gracefully on stale refs; a
// file that cannot be parsed or validated returns CorruptRecordError.
func (s *Store) Load(ref Ref) (*domain.Play, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading play %s: %w", ref.ID, err)
	}

	var play domain.Play
	if err := json.Unmarshal(data, &play); err != nil {
		return nil, &domain.CorruptRecordError{Path: ref.Path, Err: err}
	}
	if err := play.Validate(); err != nil {
		return nil, &domain.CorruptRecordError{Path: ref.Path, Err: err}
	}
	return &play, nil
}

// Find locates a play by ID, scanning status areas in lifecycle order.
// When a crash-duplicated record exists in two areas, the earlier status
// wins, which matches the move direction (the later copy is the stale one
// only if the delete of the source failed; a re-Move repairs it).
func (s *Store) Find(id string) (*domain.Play, error) {
	for _, st := range domain.AllStatuses {
		ref := Ref{ID: id, Status: st, Path: s.playPath(st, id)}
		play, err := s.Load(ref)
		if err == nil {
			return play, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return nil, err
	}
	return nil, domain.ErrNotFound
}

// FindByName locates a play by its display name across all status areas.
func (s *Store) FindByName(name string) (*domain.Play, error) {
	for _, st := range domain.AllStatuses {
		refs, err := s.List(st)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			play, err := s.Load(ref)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				var corrupt *domain.CorruptRecordError
				if errors.As(err, &corrupt) {
					s.log.Warn("skipping corrupt record during name scan",
						"path", corrupt.Path, "error", corrupt.Err)
					continue
				}
				return nil, err
			}
			if play.Name == name {
				return play, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// Remove deletes the record behind a reference. Missing files are not an
// error; the archiver uses this after a play has been copied elsewhere.
func (s *Store) Remove(ref Ref) error {
	if err := os.Remove(ref.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing play %s: %w", ref.ID, err)
	}
	return nil
}

// Count returns the number of play records in a status area.
func (s *Store) Count(status domain.PlayStatus) (int, error) {
	refs, err := s.List(status)
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}
