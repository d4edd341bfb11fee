package rpc

import "errors"

// ErrUnavailable indicates the node could not be reached or answered with a
// server error. Callers treat it as transient and retry with backoff.
var ErrUnavailable = errors.New("node unavailable")

// ErrNotFound indicates the node does not (yet) have the requested block.
// When probing past the head this means "nothing new", not a failure.
var ErrNotFound = errors.New("block not found")
