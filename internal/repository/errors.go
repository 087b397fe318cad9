package repository

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrPendingOrderExists is the mapped unique violation on the one
	// pending order per user index. Callers recover by re-reading.
	ErrPendingOrderExists = errors.New("user already has a pending order")

	// ErrOrderNumberTaken is the mapped unique violation on the order
	// number column. Callers recover by reselecting the next candidate.
	ErrOrderNumberTaken = errors.New("order number already taken")
)
