package housekeeper

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Persisted document filenames within the data directory.
const (
	planFilename     = "plan.json"
	rollbackFilename = "rollback.json"
	ignoredFilename  = "ignored.json"
)

// storeFilePermissions restricts the persisted documents to the
// housekeeper's own user.
const storeFilePermissions = 0600

// Store persists the three housekeeper documents - current plan, current
// rollback record, and the ignore set - as pretty-printed JSON files.
// Every write fully overwrites the previous document; there are no
// append or merge semantics.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	planPath     string
	rollbackPath string
	ignoredPath  string
}

// NewStore creates the data directory if needed and returns a Store
// rooted there.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{
		planPath:     filepath.Join(dataDir, planFilename),
		rollbackPath: filepath.Join(dataDir, rollbackFilename),
		ignoredPath:  filepath.Join(dataDir, ignoredFilename),
	}, nil
}

// SavePlan overwrites the current plan document.
func (s *Store) SavePlan(plan *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.planPath, plan)
}

// LoadPlan returns the current plan, or (nil, nil) if none has been
// persisted yet.
func (s *Store) LoadPlan() (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var plan Plan
	ok, err := readJSONFile(s.planPath, &plan)
	if err != nil || !ok {
		return nil, err
	}
	return &plan, nil
}

// SaveRollback overwrites the current rollback record.
func (s *Store) SaveRollback(record *RollbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.rollbackPath, record)
}

// LoadRollback returns the current rollback record, or (nil, nil) if
// none exists.
func (s *Store) LoadRollback() (*RollbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var record RollbackRecord
	ok, err := readJSONFile(s.rollbackPath, &record)
	if err != nil || !ok {
		return nil, err
	}
	return &record, nil
}

// Ignored returns the persisted ignore set, sorted. A missing file is an
// empty set.
func (s *Store) Ignored() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIgnoredLocked()
}

// AddIgnored adds fingerprints to the ignore set and returns the new
// sorted set. Adding an already-present fingerprint is a no-op.
func (s *Store) AddIgnored(fingerprints []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadIgnoredLocked()
	if err != nil {
		return nil, err
	}
	set := toSet(current)
	for _, fp := range fingerprints {
		if fp != "" {
			set[fp] = true
		}
	}
	return s.saveIgnoredLocked(set)
}

// RemoveIgnored removes fingerprints from the ignore set and returns the
// new sorted set. Removing an absent fingerprint is a no-op.
func (s *Store) RemoveIgnored(fingerprints []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadIgnoredLocked()
	if err != nil {
		return nil, err
	}
	set := toSet(current)
	for _, fp := range fingerprints {
		delete(set, fp)
	}
	return s.saveIgnoredLocked(set)
}

// ClearIgnored empties the ignore set.
func (s *Store) ClearIgnored() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.saveIgnoredLocked(map[string]bool{})
	return err
}

// loadIgnoredLocked reads the ignore file. Caller must hold s.mu.
func (s *Store) loadIgnoredLocked() ([]string, error) {
	var fingerprints []string
	ok, err := readJSONFile(s.ignoredPath, &fingerprints)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	sort.Strings(fingerprints)
	return fingerprints, nil
}

// saveIgnoredLocked writes the ignore set sorted. Caller must hold s.mu.
func (s *Store) saveIgnoredLocked(set map[string]bool) ([]string, error) {
	sorted := make([]string, 0, len(set))
	for fp := range set {
		sorted = append(sorted, fp)
	}
	sort.Strings(sorted)
	if err := writeJSONFile(s.ignoredPath, sorted); err != nil {
		return nil, err
	}
	return sorted, nil
}

// writeJSONFile overwrites path with indented JSON.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, storeFilePermissions); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readJSONFile reads path into v. Returns (false, nil) when the file
// does not exist.
func readJSONFile(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// toSet converts a fingerprint slice to a set.
func toSet(fingerprints []string) map[string]bool {
	set := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		set[fp] = true
	}
	return set
}
