package odin

import "fmt"

// APIError is a failure the canister itself reported through the err
// variant of its result. It is a hard failure: the operation was rejected.
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("odin %s: %s", e.Method, e.Message)
}

// DecodeError marks a response body that could not be parsed. The Odin
// canister occasionally returns malformed payloads even when the
// underlying operation succeeded, so callers must treat this as an
// ambiguous success and verify downstream rather than abort.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("odin %s: response parsing failed: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
