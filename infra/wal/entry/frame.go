package entry

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
)

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
// The CRC covers header and payload.
const (
	headerSize = 1 + 8 + 8 + 4
	crcSize    = 4

	// MaxPayload bounds a single record so a corrupt length cannot force
	// a huge allocation during replay.
	MaxPayload = 16 << 20
)

var (
	ErrCorrupt       = errors.New("entry: corrupt record")
	ErrNonMonotonic  = errors.New("entry: non-monotonic sequence")
	ErrPayloadTooBig = errors.New("entry: payload too large")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeFrame(r *Record) []byte {
	n := len(r.Data)
	buf := make([]byte, headerSize+n+crcSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], uint32(n))
	copy(buf[headerSize:], r.Data)

	sum := crc32.Checksum(buf[:headerSize+n], castagnoli)
	binary.BigEndian.PutUint32(buf[headerSize+n:], sum)
	return buf
}

// readFrame returns io.EOF at a clean end and io.ErrUnexpectedEOF for a
// record cut short by a crash.
func readFrame(r io.Reader) (*Record, int64, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, err
	}

	n := binary.BigEndian.Uint32(header[17:21])
	if n > MaxPayload {
		return nil, 0, errors.Wrapf(ErrCorrupt, "length %d", n)
	}

	body := make([]byte, int(n)+crcSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}

	payload := body[:n]
	want := binary.BigEndian.Uint32(body[n:])

	h := crc32.New(castagnoli)
	_, _ = h.Write(header)
	_, _ = h.Write(payload)
	if h.Sum32() != want {
		return nil, 0, errors.Wrapf(ErrCorrupt, "crc mismatch at seq %d", binary.BigEndian.Uint64(header[1:9]))
	}

	typ := RecordType(header[0])
	if !typ.known() {
		return nil, 0, errors.Wrapf(ErrCorrupt, "record type %s", typ)
	}

	return &Record{
		Type: typ,
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, int64(headerSize + len(body)), nil
}
