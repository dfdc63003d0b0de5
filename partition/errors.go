package partition

import "errors"

// ErrCapacityExceeded is returned by Open when the partition's predicted
// RAM index need does not fit under the caller-supplied budget. Callers
// are expected to retry once with the tail cache disabled and the
// low-memory flag asserted (see OpenWithFallback).
var ErrCapacityExceeded = errors.New("partition: capacity exceeded")

// ErrClosed is returned by write operations (Put, Replace, AddUnique,
// Delete, Remove) attempted on a closed Store. Read operations (Has, Get)
// degrade to their zero value instead, since their signatures have no
// error return to carry it.
var ErrClosed = errors.New("partition: store is closed")
