// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"grimm.is/synguard/internal/errors"
)

// PIDFile is the run lock: an flock'd file holding the daemon PID. The
// lock is held for the process lifetime, so a stale file left by a crash
// never blocks a new instance.
type PIDFile struct {
	path string
	f    *os.File
}

// lockAttempts bounds retries when the file is replaced while locking.
const lockAttempts = 5

// beforeLock runs between opening and locking the PID file.
var beforeLock = func(*os.File) {}

// AcquirePIDFile takes the run lock at path and writes the current PID.
// It fails with KindConflict when another process holds the lock.
func AcquirePIDFile(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to create run directory"), "path", path)
	}

	for range lockAttempts {
		f, err := lockFile(path)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		if err := f.Truncate(0); err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.KindUnavailable, "failed to truncate PID file")
		}
		if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
			f.Close()
			return nil, errors.Wrap(err, errors.KindUnavailable, "failed to write PID file")
		}
		return &PIDFile{path: path, f: f}, nil
	}
	return nil, errors.Attr(errors.New(errors.KindConflict, "PID file keeps being replaced"), "path", path)
}

// lockFile opens and locks path. It returns a nil file when the locked
// inode is no longer the one at path: a previous holder unlinked it while
// we waited, so the lock protects nothing.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to open PID file"), "path", path)
	}
	beforeLock(f)

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			e := errors.New(errors.KindConflict, "another instance is already running")
			if pid, perr := ReadPID(path); perr == nil {
				e = errors.Attr(e, "pid", pid)
			}
			return nil, errors.Attr(e, "path", path)
		}
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to lock PID file"), "path", path)
	}

	if !sameFile(f, path) {
		f.Close()
		return nil, nil
	}
	return f, nil
}

func sameFile(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

// Path returns the PID file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Release removes the file and drops the lock. The file goes first so
// "stop" sees it disappear only once the daemon is done.
func (p *PIDFile) Release() error {
	if p.f == nil {
		return nil
	}
	err := os.Remove(p.path)
	p.f.Close()
	p.f = nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReadPID reads the PID stored at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Attr(errors.New(errors.KindNotFound, "no PID file found (is the daemon running?)"), "path", path)
		}
		return 0, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to read PID file"), "path", path)
	}
	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.Attr(errors.Errorf(errors.KindValidation, "invalid PID in file: %q", pidStr), "path", path)
	}
	return pid, nil
}

// processAlive reports whether pid exists, using signal 0.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
