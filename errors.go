package packedmap

import "errors"

// ErrNotFound is returned by At when the requested key is not present.
var ErrNotFound = errors.New("packedmap: key not found")

// ErrCapacityExhausted is returned when an operation needs to grow a stack
// pool (or create a new one) and the allocation fails. The map keeps the
// keys and values it held before the call that returned it; a rehash that
// completed before the failing allocation is not undone, so BucketCount may
// have grown.
var ErrCapacityExhausted = errors.New("packedmap: capacity exhausted")

// ErrInvalidLoadFactor is returned by SetMaxLoadFactor when f <= 0.
var ErrInvalidLoadFactor = errors.New("packedmap: max load factor must be positive")
