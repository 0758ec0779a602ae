package mapstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Output manages timestamped map database files in a directory, keeping
// at most a fixed number of the newest ones.
type Output struct {
	dir  string
	keep int
}

// NewOutput returns an Output writing under dir and keeping at most
// keep databases.
func NewOutput(dir string, keep int) *Output {
	if keep <= 0 {
		keep = 5
	}
	return &Output{
		dir:  dir,
		keep: keep,
	}
}

// Path returns the database path for a product stamped ts, creating the
// output directory if needed. The caller opens and fills the database,
// closes it, then calls Prune.
func (o *Output) Path(ts time.Time) (string, error) {
	if err := os.MkdirAll(o.dir, 0755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	return filepath.Join(o.dir, fmt.Sprintf("maps_%d.db", ts.Unix())), nil
}

// Latest returns the newest map database by the timestamp in its
// filename.
func (o *Output) Latest() (string, time.Time, error) {
	files, err := o.listFiles()
	if err != nil {
		return "", time.Time{}, err
	}

	if len(files) == 0 {
		return "", time.Time{}, fmt.Errorf("no map files in %s", o.dir)
	}

	// Files are sorted oldest first; take the last one.
	latest := files[len(files)-1]
	return filepath.Join(o.dir, latest.name), latest.ts, nil
}

// Prune removes the oldest map databases beyond the retention count.
func (o *Output) Prune() error {
	files, err := o.listFiles()
	if err != nil {
		return err
	}

	if len(files) <= o.keep {
		return nil
	}

	for _, f := range files[:len(files)-o.keep] {
		if err := os.Remove(filepath.Join(o.dir, f.name)); err != nil {
			return fmt.Errorf("pruning map file %s: %w", f.name, err)
		}
	}
	return nil
}

type outputFile struct {
	name string
	ts   time.Time
}

func (o *Output) listFiles() ([]outputFile, error) {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing output dir: %w", err)
	}

	var files []outputFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "maps_") || !strings.HasSuffix(name, ".db") {
			continue
		}
		// Extract unix timestamp from filename.
		tsStr := strings.TrimPrefix(name, "maps_")
		tsStr = strings.TrimSuffix(tsStr, ".db")
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, outputFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}
