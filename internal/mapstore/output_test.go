package mapstore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDummy(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// TestOutputPathCreatesDir verifies that Path builds the timestamped
// filename and creates the output directory.
func TestOutputPathCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "maps")
	o := NewOutput(dir, 3)

	ts := time.Unix(1700000000, 0)
	path, err := o.Path(ts)
	if err != nil {
		t.Fatalf("Path error: %v", err)
	}
	if want := filepath.Join(dir, "maps_1700000000.db"); path != want {
		t.Errorf("Path = %q, want %q", path, want)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("output dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("output path %s is not a directory", dir)
	}
}

// TestOutputPruneKeepsNewest verifies that pruning removes the oldest
// databases beyond the retention count and ignores unrelated files.
func TestOutputPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	o := NewOutput(dir, 2)

	base := time.Unix(1700000000, 0)
	for i := 0; i < 4; i++ {
		path, err := o.Path(base.Add(time.Duration(i) * time.Hour))
		if err != nil {
			t.Fatalf("Path error: %v", err)
		}
		writeDummy(t, path)
	}

	// Unrelated entries must survive pruning untouched.
	writeDummy(t, filepath.Join(dir, "README.txt"))
	writeDummy(t, filepath.Join(dir, "maps_garbage.db"))
	if err := os.Mkdir(filepath.Join(dir, "maps_sub.db"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := o.Prune(); err != nil {
		t.Fatalf("Prune error: %v", err)
	}

	for i, wantGone := range []bool{true, true, false, false} {
		ts := base.Add(time.Duration(i) * time.Hour)
		name := filepath.Join(dir, fmt.Sprintf("maps_%d.db", ts.Unix()))
		_, err := os.Stat(name)
		gone := os.IsNotExist(err)
		if gone != wantGone {
			t.Errorf("file %s gone = %v, want %v", name, gone, wantGone)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "README.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "maps_garbage.db")); err != nil {
		t.Errorf("non-timestamped file removed: %v", err)
	}
}

// TestOutputLatest verifies that Latest returns the newest database by
// filename timestamp.
func TestOutputLatest(t *testing.T) {
	dir := t.TempDir()
	o := NewOutput(dir, 5)

	times := []time.Time{
		time.Unix(1700000300, 0),
		time.Unix(1700000100, 0),
		time.Unix(1700000200, 0),
	}
	for _, ts := range times {
		path, err := o.Path(ts)
		if err != nil {
			t.Fatalf("Path error: %v", err)
		}
		writeDummy(t, path)
	}

	path, ts, err := o.Latest()
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if want := filepath.Join(dir, "maps_1700000300.db"); path != want {
		t.Errorf("Latest path = %q, want %q", path, want)
	}
	if ts.Unix() != 1700000300 {
		t.Errorf("Latest ts = %d, want 1700000300", ts.Unix())
	}
}

// TestOutputLatestEmpty verifies that Latest reports an error when the
// directory has no map databases.
func TestOutputLatestEmpty(t *testing.T) {
	o := NewOutput(t.TempDir(), 3)

	if _, _, err := o.Latest(); err == nil {
		t.Fatal("Latest on empty dir did not error")
	}
}

// TestOutputDefaultKeep verifies that a non-positive retention count
// falls back to the default of five.
func TestOutputDefaultKeep(t *testing.T) {
	dir := t.TempDir()
	o := NewOutput(dir, 0)

	base := time.Unix(1700000000, 0)
	for i := 0; i < 7; i++ {
		path, err := o.Path(base.Add(time.Duration(i) * time.Minute))
		if err != nil {
			t.Fatalf("Path error: %v", err)
		}
		writeDummy(t, path)
	}

	if err := o.Prune(); err != nil {
		t.Fatalf("Prune error: %v", err)
	}

	files, err := o.listFiles()
	if err != nil {
		t.Fatalf("listFiles error: %v", err)
	}
	if len(files) != 5 {
		t.Errorf("files after prune = %d, want 5", len(files))
	}
}
