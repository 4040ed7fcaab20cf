package snapshot

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

const filePattern = "snapshot-*.bin"

type Writer struct {
	Dir string
	// Keep is how many snapshot files survive a write. Zero keeps all.
	Keep int
}

// Write stores s atomically as snapshot-<seq>.bin and prunes old files.
func (w *Writer) Write(s *Snapshot) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create snapshot dir %s", w.Dir)
	}

	path := filepath.Join(w.Dir, fmt.Sprintf("snapshot-%020d.bin", s.Seq))
	tmp, err := os.CreateTemp(w.Dir, ".snapshot-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "create snapshot temp file")
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	err = gob.NewEncoder(bw).Encode(s)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	err = errors.CombineErrors(err, tmp.Close())
	if err != nil {
		return "", errors.Wrapf(err, "write snapshot %d", s.Seq)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrapf(err, "publish snapshot %s", path)
	}

	return path, w.prune()
}

func (w *Writer) prune() error {
	if w.Keep <= 0 {
		return nil
	}
	files, err := list(w.Dir)
	if err != nil {
		return err
	}
	for len(files) > w.Keep {
		if err := os.Remove(files[0]); err != nil {
			return errors.Wrapf(err, "prune %s", files[0])
		}
		files = files[1:]
	}
	return nil
}

func list(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Read loads one snapshot file.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot %s", path)
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return &s, nil
}

// Latest loads the newest snapshot in dir. It returns nil, nil when there
// is none: snapshots are optional.
func Latest(dir string) (*Snapshot, error) {
	files, err := list(dir)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return Read(files[len(files)-1])
}
