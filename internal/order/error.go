package order

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment record not found")
	// ErrStatusConflict means a conditional status update matched no row.
	ErrStatusConflict = errors.New("order status changed concurrently")
)
