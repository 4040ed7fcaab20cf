// Package memory holds typed object pools used on the matching hot path,
// such as the scratch slices a fill-or-kill taker reserves makers into.
package memory
