package exit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("exit: record not found")

// -------------------- Record --------------------

// ExitRecord is the delivery state of one outgoing event.
type ExitRecord struct {
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const recordHeader = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[recordHeader:], r.Payload)
	return buf
}

// decodeRecord copies b, which pebble only lends until the next call.
func decodeRecord(b []byte) (ExitRecord, error) {
	if len(b) < recordHeader {
		return ExitRecord{}, errors.Newf("exit: record of %d bytes", len(b))
	}
	return ExitRecord{
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[recordHeader:]),
	}, nil
}

// -------------------- Outbox --------------------

// Outbox is a pebble-backed store of events awaiting delivery, keyed by
// event sequence.
type Outbox struct {
	db    *pebble.DB
	write *pebble.WriteOptions
}

type Option func(*options)

type options struct {
	fs   vfs.FS
	sync bool
}

// WithFS runs pebble on fs, e.g. vfs.NewMem() in tests.
func WithFS(fs vfs.FS) Option {
	return func(o *options) { o.fs = fs }
}

// WithSync makes Put fsync. State updates always sync.
func WithSync(sync bool) Option {
	return func(o *options) { o.sync = sync }
}

func Open(dir string, opts ...Option) (*Outbox, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	db, err := pebble.Open(dir, &pebble.Options{FS: o.fs})
	if err != nil {
		return nil, errors.Wrapf(err, "open outbox %s", dir)
	}

	w := pebble.NoSync
	if o.sync {
		w = pebble.Sync
	}
	return &Outbox{db: db, write: w}, nil
}

func (w *Outbox) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// Put stores a NEW entry for the event with sequence seq.
func (w *Outbox) Put(seq uint64, payload []byte) error {
	rec := ExitRecord{State: StateNew, Payload: payload}
	return errors.Wrapf(w.db.Set(keyFor(seq), encodeRecord(rec), w.write), "outbox put %d", seq)
}

// UpdateState records a delivery attempt and keeps the payload.
func (w *Outbox) UpdateState(seq uint64, state ExitState, retries uint32) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return errors.Wrapf(w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync), "outbox update %d", seq)
}

func (w *Outbox) Delete(seq uint64) error {
	return errors.Wrapf(w.db.Delete(keyFor(seq), pebble.Sync), "outbox delete %d", seq)
}

func (w *Outbox) Get(seq uint64) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return ExitRecord{}, errors.Wrapf(ErrNotFound, "seq %d", seq)
	}
	if err != nil {
		return ExitRecord{}, errors.Wrapf(err, "outbox get %d", seq)
	}
	defer closer.Close()

	return decodeRecord(val)
}

// -------------------- Scan --------------------

// ScanByState visits up to limit records in state, oldest first.
// limit <= 0 means no limit.
func (w *Outbox) ScanByState(
	state ExitState,
	limit int,
	fn func(seq uint64, rec ExitRecord) error,
) error {
	n := 0
	return w.scan(lowerBound, upperBound, func(seq uint64, rec ExitRecord) (bool, error) {
		if rec.State != state {
			return true, nil
		}
		if err := fn(seq, rec); err != nil {
			return false, err
		}
		n++
		return limit <= 0 || n < limit, nil
	})
}

// TruncateAckedUpTo deletes ACKED records with seq at most upTo.
func (w *Outbox) TruncateAckedUpTo(upTo uint64) (int, error) {
	batch := w.db.NewBatch()
	defer batch.Close()

	n := 0
	err := w.scan(lowerBound, keyAfter(upTo), func(seq uint64, rec ExitRecord) (bool, error) {
		if rec.State == StateAcked {
			n++
			return true, batch.Delete(keyFor(seq), nil)
		}
		return true, nil
	})
	if err != nil || n == 0 {
		return 0, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, errors.Wrap(err, "outbox truncate")
	}
	return n, nil
}

// Counts returns the number of records per state.
func (w *Outbox) Counts() (map[ExitState]int, error) {
	out := make(map[ExitState]int, 4)
	err := w.scan(lowerBound, upperBound, func(_ uint64, rec ExitRecord) (bool, error) {
		out[rec.State]++
		return true, nil
	})
	return out, err
}

func (w *Outbox) scan(lower, upper []byte, fn func(uint64, ExitRecord) (bool, error)) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return errors.Wrap(err, "outbox iter")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		more, err := fn(seq, rec)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const keyPrefix = "event/"

var (
	lowerBound = []byte(keyPrefix)
	upperBound = []byte(keyPrefix + "~")
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf(keyPrefix+"%020d", seq))
}

// keyAfter is the exclusive upper bound for keys up to seq.
func keyAfter(seq uint64) []byte {
	return append(keyFor(seq), 0)
}

func parseKey(b []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(bytes.TrimPrefix(b, lowerBound)), 10, 64)
	return seq, errors.Wrapf(err, "outbox key %q", b)
}
