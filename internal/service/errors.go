package service

import "errors"

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNotAuthenticated = errors.New("user is not authenticated")

	// ErrNoPendingOrder signals that the pending order could not be located
	// or created when validation needed it. That is a consistency fault, not
	// a user error.
	ErrNoPendingOrder = errors.New("no pending order for user")

	// ErrSyncFailed is a persistence conflict or I/O failure that survived
	// the bounded retries.
	ErrSyncFailed = errors.New("cart synchronization failed")
)

// maxSyncRetries bounds locate-or-create and order-number reselection loops.
const maxSyncRetries = 3
