package onetimepad

import "errors"

var (
	// ErrInvalidParty is returned when a party is not associated with a pad or
	// does not follow the name@machine convention.
	ErrInvalidParty = errors.New("invalid party")
	// ErrOutOfChunks is returned when a chunk index lies beyond the pad. The pad
	// is exhausted for the requesting party and a new one is required.
	ErrOutOfChunks = errors.New("out of chunks")
	// ErrOneTimePadMismatch is returned when an encrypted message was produced
	// with a different pad than the one presented.
	ErrOneTimePadMismatch = errors.New("one time pad mismatch")
	// ErrCryptor is returned for malformed input to the transform layer.
	ErrCryptor = errors.New("cryptor failure")
	// ErrInvalidPad is returned when pad material is malformed.
	ErrInvalidPad = errors.New("invalid pad")
	// ErrNotFound is returned by storage lookups for missing keys.
	ErrNotFound = errors.New("not found")
)
