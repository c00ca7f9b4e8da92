// Package lockfile keeps a single tracker process per state database.
package lockfile

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"
)

// Lock is an exclusive advisory lock held for the life of the process.
type Lock struct {
	f *os.File
}

// PathFor returns the lock file guarding dbPath.
func PathFor(dbPath string) string {
	return dbPath + ".lock"
}

// Acquire takes the lock at path without blocking. The holder's pid is
// written into the file so a refused start can name it.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(f)
		f.Close()
		if holder != "" {
			return nil, fmt.Errorf("lockfile: state database in use by pid %s (lock: %s)", holder, path)
		}
		return nil, fmt.Errorf("lockfile: state database in use (lock: %s): %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		f.Seek(0, 0)
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &Lock{f: f}, nil
}

// Release drops the lock and removes the file. Safe on a nil Lock.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	name := l.f.Name()
	l.f.Close()
	os.Remove(name)
	l.f = nil
}

func readHolder(f *os.File) string {
	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	return strings.TrimSpace(string(bytes.TrimRight(buf[:n], "\x00")))
}
