// Package service is the write entry point used by transports. It wraps
// the matching engine with metrics and logging, recovers state from
// snapshots and the journal at start-up, and runs the background jobs that
// snapshot and uncross the book.
package service
