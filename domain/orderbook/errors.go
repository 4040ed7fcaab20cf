package orderbook

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// ErrInvalidOrder is returned for malformed order terms. The order is rejected.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrDuplicateOrderID is returned when an order ID is already known to the book.
	ErrDuplicateOrderID = errors.New("duplicate order id")

	ErrNotFound        = errors.New("order not found")
	ErrAlreadyTerminal = errors.New("order already terminal")

	// ErrWouldCrossMakerOnly is returned when a maker-only order would take liquidity.
	ErrWouldCrossMakerOnly = errors.New("maker-only order would cross")

	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")

	// ErrContentionExhausted is returned when bounded retries ran out. Safe to retry.
	ErrContentionExhausted = errors.New("contention exhausted")
)

// RetriableError is implemented by errors the caller may retry as a whole.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// OrderError is the structured failure of a book or engine operation.
type OrderError struct {
	Op  string
	ID  uuid.UUID
	Err error
}

func (e *OrderError) Error() string {
	return e.Op + " " + e.ID.String() + ": " + e.Err.Error()
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

func (e *OrderError) IsRetriable() bool {
	return errors.Is(e.Err, ErrContentionExhausted)
}

func opError(op string, id uuid.UUID, err error) *OrderError {
	return &OrderError{Op: op, ID: id, Err: err}
}

// ReasonFor maps a terminal reason onto its error sentinel, nil for ReasonNone.
func ReasonFor(r Reason) error {
	switch r {
	case ReasonInvalidOrder:
		return ErrInvalidOrder
	case ReasonDuplicateOrderID:
		return ErrDuplicateOrderID
	case ReasonWouldCrossMakerOnly:
		return ErrWouldCrossMakerOnly
	case ReasonInsufficientLiquidity:
		return ErrInsufficientLiquidity
	case ReasonSlippageExceeded:
		return ErrSlippageExceeded
	default:
		return nil
	}
}
