package entry

import (
	"strconv"
	"time"
)

type RecordType uint8

const (
	// RecordEvent carries one wire-encoded book event.
	RecordEvent RecordType = iota + 1
)

func (t RecordType) String() string {
	if t == RecordEvent {
		return "event"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

func (t RecordType) known() bool {
	return t == RecordEvent
}

// Record is one journal entry. Seq is assigned by WAL.Append when zero;
// Time is unix nanoseconds.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

// NewRecord stamps data with the current time.
func NewRecord(t RecordType, data []byte) *Record {
	return &Record{Type: t, Time: time.Now().UnixNano(), Data: data}
}
