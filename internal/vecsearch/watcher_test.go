package vecsearch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherMarksStaleOnWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher([]string{dir})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if w.Stale() {
		t.Fatal("fresh watcher should not be stale")
	}

	if err := os.WriteFile(filepath.Join(dir, "source.go"), []byte("package x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !w.Stale() {
		if time.Now().After(deadline) {
			t.Fatal("watcher never marked stale after a write")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w.Reset()
	if w.Stale() {
		t.Error("reset should clear staleness")
	}
}
