// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package procnet

import (
	"context"
	"os"

	"grimm.is/synguard/internal/errors"
)

// Source produces one snapshot of the connection table per call.
type Source interface {
	Scan(ctx context.Context, fn func(Record) bool) error
}

// FileSource reads a snapshot from a file in /proc/net/tcp format.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path, defaulting to DefaultTable.
func NewFileSource(path string) *FileSource {
	if path == "" {
		path = DefaultTable
	}
	return &FileSource{Path: path}
}

// Scan streams the current table contents to fn. Open and read failures
// are reported as KindUnavailable so callers treat them as transient;
// a permission failure is KindPermission and will not clear by itself.
func (s *FileSource) Scan(ctx context.Context, fn func(Record) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsPermission(err) {
			return errors.Attr(errors.Wrap(err, errors.KindPermission, "connection table not readable"), "path", s.Path)
		}
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to open connection table"), "path", s.Path)
	}
	defer f.Close()

	if err := Scan(f, fn); err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to read connection table"), "path", s.Path)
	}
	return nil
}
