package wire

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// Name is the gRPC content subtype the codec registers under.
const Name = "apexwire"

// Message is implemented by every type the codec can carry.
type Message interface {
	AppendWire(b []byte) []byte
	UnmarshalWire(b []byte) error
}

func Marshal(m Message) []byte {
	return m.AppendWire(nil)
}

func Unmarshal(b []byte, m Message) error {
	return m.UnmarshalWire(b)
}

// Codec adapts Message to grpc's encoding.Codec.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, errors.Newf("wire: cannot marshal %T", v)
	}
	return m.AppendWire(nil), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return errors.Newf("wire: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}

func (Codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(Codec{})
}

// ────────────────────────────────────────────────────────────────
// Encoding helpers. Zero values are omitted as in proto3.
// ────────────────────────────────────────────────────────────────

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	return appendUint(b, num, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendUint(b, num, 1)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUUID(b []byte, num protowire.Number, id uuid.UUID) []byte {
	if id == uuid.Nil {
		return b
	}
	return appendBytes(b, num, id[:])
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return appendInt(b, num, t.UnixNano())
}

// appendMessage writes m as a length-delimited field, even when empty,
// so repeated fields keep their element count.
func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendWire(nil))
}

// ────────────────────────────────────────────────────────────────
// Decoding
// ────────────────────────────────────────────────────────────────

type field struct {
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) int64() int64   { return int64(f.u) }
func (f field) uint32() uint32 { return uint32(f.u) }
func (f field) bool() bool     { return f.u != 0 }

func (f field) uuid() (uuid.UUID, error) {
	if len(f.b) == 0 {
		return uuid.Nil, nil
	}
	id, err := uuid.FromBytes(f.b)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "wire: order id")
	}
	return id, nil
}

func (f field) time() time.Time {
	if f.u == 0 {
		return time.Time{}
	}
	return time.Unix(0, f.int64()).UTC()
}

// decode walks the fields of b. Unknown fields reach fn too and are
// expected to be ignored.
func decode(b []byte, fn func(num protowire.Number, f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "wire: tag")
		}
		b = b[n:]

		f := field{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(protowire.ParseError(n), "wire: field %d", num)
		}
		b = b[n:]

		if err := fn(num, f); err != nil {
			return err
		}
	}
	return nil
}
