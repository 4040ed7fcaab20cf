// Package snapshot persists and rebuilds resting book state.
//
// A Snapshot is captured from a live book or from a Replica, written as
// gob to a numbered file, and read back at start-up. A Replica rebuilds the
// same state purely from book events, so a snapshot plus the journal tail
// after its sequence reconstructs the book.
package snapshot
