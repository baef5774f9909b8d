// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package runlock implements the advisory single-run lock: concurrent runs
// against the same target database are not supported and must be
// prevented before start_run is ever called. Grounded on an IndexQueue's
// flock pattern, trimmed to the lock-only subset — there is no commit
// queue in this domain.
package runlock

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// Info describes the current lock holder, written into the lock file
// alongside the exclusive flock so a stale lock can be diagnosed.
type Info struct {
	PID       int
	StartedAt time.Time
}

// Lock is an advisory, process-exclusive file lock rooted at path.
type Lock struct {
	path string
	file *os.File
}

// New returns a Lock backed by the file at path (typically
// <scratch_root>/run.lock). The file is not created or opened until
// TryAcquire is called.
func New(path string) *Lock {
	return &Lock{path: path}
}

// TryAcquire attempts to take the lock without blocking. ok is false (with
// a nil error) when another live process already holds it.
func (l *Lock) TryAcquire() (ok bool, err error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("runlock: open %s: %w", l.path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("runlock: flock %s: %w", l.path, err)
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("runlock: truncate %s: %w", l.path, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("runlock: seek %s: %w", l.path, err)
	}
	if _, err := fmt.Fprintf(f, "%d %d\n", os.Getpid(), time.Now().Unix()); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("runlock: write %s: %w", l.path, err)
	}

	l.file = f
	return true, nil
}

// Release drops the lock and closes the underlying file.
func (l *Lock) Release() {
	if l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}

// ReadInfo reads the current lock holder's PID and start time without
// acquiring the lock, or (nil, nil) if no lock file exists yet.
func (l *Lock) ReadInfo() (*Info, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("runlock: read %s: %w", l.path, err)
	}

	var pid int
	var ts int64
	if _, err := fmt.Sscanf(string(data), "%d %d", &pid, &ts); err != nil {
		return nil, fmt.Errorf("runlock: parse %s: %w", l.path, err)
	}
	return &Info{PID: pid, StartedAt: time.Unix(ts, 0)}, nil
}

// IsStale reports whether the recorded lock holder's process no longer
// exists. A read or parse failure is treated as "not stale" so a
// transient I/O error never causes a live lock to be seized.
func (l *Lock) IsStale() bool {
	info, err := l.ReadInfo()
	if err != nil || info == nil {
		return false
	}
	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return true
	}
	// On Unix FindProcess always succeeds; signal 0 probes liveness.
	return proc.Signal(syscall.Signal(0)) != nil
}
