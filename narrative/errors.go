package narrative

import "errors"

var (
	// ErrMalformedOutput means the separator between narrative and JSON was missing.
	ErrMalformedOutput = errors.New("malformed generator output")
	// ErrInvalidDelta means the JSON section did not parse into an object.
	ErrInvalidDelta = errors.New("invalid state delta")
	// ErrGeneratorFailed wraps transport and API failures of the generator call.
	ErrGeneratorFailed = errors.New("generator call failed")
)
