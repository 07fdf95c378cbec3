package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitChange(t *testing.T, w *Watcher) (string, bool) {
	t.Helper()
	select {
	case f := <-w.Changes:
		return f, true
	case <-time.After(3 * time.Second):
		return "", false
	}
}

func TestWatcherReportsWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "boosty-milker.rb")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(watched, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{watched}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(other, []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(watched, []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}

	got, ok := waitChange(t, w)
	if !ok {
		t.Fatal("no change reported")
	}
	if got != watched {
		t.Errorf("change = %s, want %s", got, watched)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "tap.yml")

	w, err := New([]string{watched}, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(watched, []byte{byte('a' + i)}, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := waitChange(t, w); !ok {
		t.Fatal("no change reported")
	}
	select {
	case f := <-w.Changes:
		t.Errorf("burst produced a second change for %s", f)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestNewRequiresPaths(t *testing.T) {
	if _, err := New(nil, 0); err == nil {
		t.Error("expected error for no paths")
	}
}
