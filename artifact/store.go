// Package artifact persists run records, validation sidecars, comparison
// summaries and canonical snapshots as JSON files under an output
// directory, and indexes them in SQLite.
//
// Layout:
//
//	<root>/<run_group>/<framework>/<model>/<prompt_id>.json
//	<root>/<run_group>/<framework>/<model>/<prompt_id>_validation.json
//	<root>/<run_group>/comparison.json
//	<root>/canonical/canonical_<version>_<fetched_at_unix>.json
//	<root>/index.db
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/canonical"
	"github.com/movinture/latent-logic/comparison"
	"github.com/movinture/latent-logic/validation"
)

const (
	validationSuffix   = "_validation.json"
	comparisonFile     = "comparison.json"
	canonicalDir       = "canonical"
	IndexFile          = "index.db"
	snapshotFilePrefix = "canonical_"
)

// ErrSnapshotExists is returned when a snapshot file is already present.
// Snapshots are never rewritten.
var ErrSnapshotExists = errors.New("canonical snapshot already exists")

var unsafeChars = regexp.MustCompile(`[^-\w.]`)

// SanitizeName makes a model or prompt id safe as a path component: spaces
// become underscores and characters outside [-\w.] are dropped.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(strings.ReplaceAll(name, " ", "_"), "")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Store reads and writes artifacts under Root.
type Store struct {
	Root   string
	Logger *zap.Logger
}

// NewStore returns a Store rooted at root.
func NewStore(root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{Root: root, Logger: logger}
}

func (s *Store) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// IndexPath is the location of the SQLite index.
func (s *Store) IndexPath() string { return filepath.Join(s.Root, IndexFile) }

func (s *Store) unitDir(runGroup, framework, model string) string {
	return filepath.Join(s.Root, SanitizeName(runGroup), SanitizeName(framework), SanitizeName(model))
}

// RunPath is where the AgentRunRecord for a unit is written.
func (s *Store) RunPath(runGroup, framework, model, promptID string) string {
	return filepath.Join(s.unitDir(runGroup, framework, model), SanitizeName(promptID)+".json")
}

// ValidationPath is where the sidecar for a unit is written.
func (s *Store) ValidationPath(runGroup, framework, model, promptID string) string {
	return filepath.Join(s.unitDir(runGroup, framework, model), SanitizeName(promptID)+validationSuffix)
}

// ComparisonPath is where a run group's Summary is written.
func (s *Store) ComparisonPath(runGroup string) string {
	return filepath.Join(s.Root, SanitizeName(runGroup), comparisonFile)
}

// WriteRun persists rec, replacing an earlier record for the same unit.
func (s *Store) WriteRun(rec *agentloop.AgentRunRecord) (string, error) {
	path := s.RunPath(rec.RunGroup, rec.Framework, rec.Model, rec.PromptID)
	return path, writeJSON(path, rec)
}

// WriteValidation persists a sidecar next to its run record.
func (s *Store) WriteValidation(v validation.ValidationRecord) (string, error) {
	path := s.ValidationPath(v.RunGroup, v.Framework, v.Model, v.PromptID)
	return path, writeJSON(path, v)
}

// WriteComparison persists the Summary for runGroup.
func (s *Store) WriteComparison(runGroup string, summary comparison.Summary) (string, error) {
	path := s.ComparisonPath(runGroup)
	return path, writeJSON(path, summary)
}

// ReadRun loads an AgentRunRecord.
func ReadRun(path string) (*agentloop.AgentRunRecord, error) {
	var rec agentloop.AgentRunRecord
	if err := readJSON(path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReadValidation loads a ValidationRecord sidecar.
func ReadValidation(path string) (validation.ValidationRecord, error) {
	var v validation.ValidationRecord
	err := readJSON(path, &v)
	return v, err
}

// LoadRows reads every run record of a framework in a run group together
// with its sidecar. Records without a sidecar are skipped with a warning.
// Rows are returned in path order.
func (s *Store) LoadRows(runGroup, framework string) ([]comparison.Row, error) {
	dir := filepath.Join(s.Root, SanitizeName(runGroup), SanitizeName(framework))
	var rows []comparison.Row
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") || strings.HasSuffix(path, validationSuffix) {
			return nil
		}
		rec, err := ReadRun(path)
		if err != nil {
			return err
		}
		sidecar := strings.TrimSuffix(path, ".json") + validationSuffix
		v, err := ReadValidation(sidecar)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.logger().Warn("run record has no validation sidecar", zap.String("path", path))
				return nil
			}
			return err
		}
		rows = append(rows, comparison.RowFrom(rec, v))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: load %s/%s: %w", runGroup, framework, err)
	}
	return rows, nil
}

// RunGroups lists run group directories that contain a framework folder.
func (s *Store) RunGroups(framework string) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var groups []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == canonicalDir {
			continue
		}
		if info, err := os.Stat(filepath.Join(s.Root, e.Name(), SanitizeName(framework))); err == nil && info.IsDir() {
			groups = append(groups, e.Name())
		}
	}
	sort.Strings(groups)
	return groups, nil
}

// SnapshotPath is the file name a snapshot is saved under.
func (s *Store) SnapshotPath(version string, fetchedAtUnix int64) string {
	name := fmt.Sprintf("%s%s_%d.json", snapshotFilePrefix, SanitizeName(version), fetchedAtUnix)
	return filepath.Join(s.Root, canonicalDir, name)
}

// SaveSnapshot writes snap once. An existing file for the same
// (version, fetched_at_unix) yields ErrSnapshotExists.
func (s *Store) SaveSnapshot(snap *canonical.Snapshot) (string, error) {
	path := s.SnapshotPath(snap.PromptVersion, snap.FetchedAtUnix)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("artifact: encode snapshot: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, fmt.Errorf("%w: %s", ErrSnapshotExists, path)
		}
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	s.logger().Info("canonical snapshot saved", zap.String("path", path))
	return path, nil
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*canonical.Snapshot, error) {
	var snap canonical.Snapshot
	if err := readJSON(path, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LatestSnapshot returns the newest snapshot saved for version.
func (s *Store) LatestSnapshot(version string) (*canonical.Snapshot, string, error) {
	prefix := snapshotFilePrefix + SanitizeName(version) + "_"
	entries, err := os.ReadDir(filepath.Join(s.Root, canonicalDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", err
	}
	best, bestTS := "", int64(-1)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"), 10, 64)
		if err != nil {
			continue
		}
		if ts > bestTS {
			best, bestTS = name, ts
		}
	}
	if best == "" {
		return nil, "", fmt.Errorf("artifact: no canonical snapshot for version %q: %w", version, fs.ErrNotExist)
	}
	path := filepath.Join(s.Root, canonicalDir, best)
	snap, err := LoadSnapshot(path)
	return snap, path, err
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", path, err)
	}
	return nil
}
