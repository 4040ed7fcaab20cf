// Package orderbook holds the order entity, its atomic lifecycle and the
// concurrent two-sided book the matching engine walks.
//
// Each side is a lock-free skip list from price to PriceLevel. A level is
// an intrusive FIFO guarded by its own mutex, so the only synchronization
// is per level or per order. Order status and remaining quantity share one
// atomic word; every mutation is a compare-and-swap on it.
//
// Every mutation is reported to a Syncer.
package orderbook
