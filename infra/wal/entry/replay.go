package entry

import "github.com/cockroachdb/errors"

type ReplayHandler func(*Record) error

// Replay streams every record with a sequence above after, in order,
// across all segments in dir. It returns the last sequence seen.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		prev := lastSeq
		last, _, err := scanSegment(path, func(rec *Record) error {
			if rec.Seq <= prev {
				return errors.Wrapf(ErrNonMonotonic, "seq %d after %d in %s", rec.Seq, prev, path)
			}
			prev = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			return fn(rec)
		})
		if err != nil {
			return lastSeq, err
		}
		if last > lastSeq {
			lastSeq = last
		}
	}
	return lastSeq, nil
}
