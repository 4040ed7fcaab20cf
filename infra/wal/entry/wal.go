package entry

import (
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryWrite fsyncs after each append. Without it data reaches the
	// OS on every append and the disk on rotation and Close.
	SyncEveryWrite bool
}

const defaultSegmentSize = 64 << 20

// WAL is an append-only segmented journal. Appends are serialized.
type WAL struct {
	cfg Config

	mu         sync.Mutex
	current    *segment
	lastSeq    uint64
	lastRotate time.Time
	closed     bool
}

// Open creates dir if needed and resumes after the last intact record,
// cutting off a torn tail left by a crash.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	w := &WAL{cfg: cfg, lastRotate: time.Now()}

	index := 0
	if len(files) > 0 {
		tail := files[len(files)-1]
		if index, err = parseIndex(tail); err != nil {
			return nil, err
		}
		last, end, err := scanSegment(tail, nil)
		if err != nil {
			return nil, err
		}
		if err := os.Truncate(tail, end); err != nil {
			return nil, errors.Wrapf(err, "repair %s", tail)
		}
		w.lastSeq = last

		// an empty tail segment: the sequence lives in an earlier one
		for i := len(files) - 2; i >= 0 && w.lastSeq == 0; i-- {
			if w.lastSeq, _, err = scanSegment(files[i], nil); err != nil {
				return nil, err
			}
		}
	}

	if w.current, err = openSegment(cfg.Dir, index); err != nil {
		return nil, err
	}
	return w, nil
}

// Append writes r, assigning the next sequence when r.Seq is zero.
func (w *WAL) Append(r *Record) error {
	if !r.Type.known() {
		return errors.Newf("entry: unknown record %s", r.Type)
	}
	if len(r.Data) > MaxPayload {
		return errors.Wrapf(ErrPayloadTooBig, "%d bytes", len(r.Data))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if r.Seq == 0 {
		r.Seq = w.lastSeq + 1
	} else if r.Seq <= w.lastSeq {
		return errors.Wrapf(ErrNonMonotonic, "seq %d after %d", r.Seq, w.lastSeq)
	}

	if err := w.current.append(encodeFrame(r)); err != nil {
		return err
	}
	w.lastSeq = r.Seq

	if w.cfg.SyncEveryWrite {
		if err := w.current.sync(); err != nil {
			return err
		}
	}
	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	if w.current.offset >= w.cfg.SegmentSize {
		return true
	}
	return w.cfg.SegmentDuration > 0 && time.Since(w.lastRotate) >= w.cfg.SegmentDuration
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()

	seg, err := openSegment(w.cfg.Dir, w.current.index+1)
	if err != nil {
		return err
	}
	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// LastSeq is the sequence of the last appended record.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.current.sync()
	return errors.CombineErrors(err, w.current.close())
}

// TruncateBefore removes closed segments whose records all have a
// sequence of at most seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) (removed int, err error) {
	w.mu.Lock()
	active := w.current.path
	w.mu.Unlock()

	files, err := listSegments(w.cfg.Dir)
	if err != nil {
		return 0, err
	}
	for _, path := range files {
		if path == active {
			break
		}
		last, _, err := scanSegment(path, nil)
		if err != nil {
			return removed, err
		}
		if last > seq {
			break
		}
		if err := os.Remove(path); err != nil {
			return removed, errors.Wrapf(err, "remove %s", path)
		}
		removed++
	}
	return removed, nil
}
