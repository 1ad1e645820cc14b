// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package state persists both ledgers across restarts. The whole snapshot
// is one JSON document replaced atomically on every save.
package state

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/netutil"
)

// Format identifies the on-disk layout.
const Format = "synguard-state/1"

// Snapshot is the persisted form of the ledgers.
type Snapshot struct {
	Format   string                     `json:"format" yaml:"format"`
	SavedAt  time.Time                  `json:"saved_at" yaml:"saved_at"`
	Flooders map[netutil.IPv4]time.Time `json:"flooders" yaml:"flooders"`
	Synners  map[netutil.IPv4]float64   `json:"synners" yaml:"synners"`
}

// Empty returns a snapshot with no records.
func Empty() *Snapshot {
	return &Snapshot{
		Format:   Format,
		Flooders: make(map[netutil.IPv4]time.Time),
		Synners:  make(map[netutil.IPv4]float64),
	}
}

// Store reads and writes the state file.
type Store struct {
	path string
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file yields an empty snapshot;
// an unreadable, corrupt or unknown-format file is an error.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to read state file"), "path", s.path)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindValidation, "corrupt state file"), "path", s.path)
	}
	if snap.Format != Format {
		return nil, errors.Attr(errors.Errorf(errors.KindValidation, "unsupported state format %q", snap.Format), "path", s.path)
	}
	if snap.Flooders == nil {
		snap.Flooders = make(map[netutil.IPv4]time.Time)
	}
	if snap.Synners == nil {
		snap.Synners = make(map[netutil.IPv4]float64)
	}
	return &snap, nil
}

// Save replaces the state file with snap. The previous file stays intact
// if any step fails.
func (s *Store) Save(snap *Snapshot) error {
	snap.Format = Format
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode state")
	}
	if err := writeAtomic(s.path, append(data, '\n')); err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to write state file"), "path", s.path)
	}
	return nil
}

// writeAtomic writes to a temp file in the same directory, syncs it and
// renames it over filename.
func writeAtomic(filename string, data []byte) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return err
	}

	// Persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
