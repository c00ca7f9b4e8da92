package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "tracker.db"))

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	defer l.Release()

	_, err = Acquire(path)
	if err == nil {
		t.Fatal("second lock should fail")
	}
	if want := fmt.Sprintf("pid %d", os.Getpid()); !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q should name the holder (%s)", err, want)
	}
}

func TestReleaseAllowsRelock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.db.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Release()
	l.Release()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("lock file should be removed, stat err = %v", err)
	}

	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("lock after release should succeed: %v", err)
	}
	l2.Release()

	var nilLock *Lock
	nilLock.Release()
}
