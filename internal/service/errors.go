package service

import "errors"

var (
	// ErrValidation is returned for out-of-range coordinates or a too-short
	// search query. No cache or upstream I/O happens before it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrUpstreamFetch wraps any failure to obtain a usable upstream payload:
	// network errors, non-2xx responses, an open circuit, or a malformed body.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)
