package entry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

const segmentPattern = "segment-*.wal"

type segment struct {
	path   string
	index  int
	file   *os.File
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	path := segmentPath(dir, index)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open segment %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat segment %s", path)
	}
	return &segment{path: path, index: index, file: f, offset: st.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	s.offset += int64(n)
	if err != nil {
		return errors.Wrapf(err, "append to %s", s.path)
	}
	return nil
}

func (s *segment) sync() error {
	return errors.Wrapf(s.file.Sync(), "sync %s", s.path)
}

func (s *segment) close() error {
	return s.file.Close()
}

// listSegments returns segment paths in index order.
func listSegments(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func parseIndex(path string) (int, error) {
	var idx int
	_, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &idx)
	return idx, errors.Wrapf(err, "segment name %s", path)
}

// scanSegment reads every intact record of a segment. It returns the
// largest sequence seen and the offset just past the last intact record.
// A torn tail is not an error; a checksum mismatch is.
func scanSegment(path string, fn func(*Record) error) (last uint64, end int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, n, err := readFrame(r)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return last, end, nil
		default:
			return last, end, errors.Wrapf(err, "segment %s at offset %d", path, end)
		}

		if rec.Seq <= last {
			return last, end, errors.Wrapf(ErrNonMonotonic, "seq %d after %d in %s", rec.Seq, last, path)
		}
		last = rec.Seq
		end += n

		if fn != nil {
			if err := fn(rec); err != nil {
				return last, end, err
			}
		}
	}
}
