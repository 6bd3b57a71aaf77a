package txid

import (
	"errors"
	"fmt"
)

// MalformedIDError is returned when an identifier cannot be decoded into the
// expected number of raw bytes.
type MalformedIDError struct {
	id     string
	length int
	cause  error
}

func newMalformedIDError(id string, length int, cause error) MalformedIDError {
	return MalformedIDError{
		id:     id,
		length: length,
		cause:  cause,
	}
}

// Error implements the error interface
func (e MalformedIDError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("malformed identifier %q: %v", e.id, e.cause)
	}
	return fmt.Sprintf("malformed identifier %q: %d bytes, expected %d", e.id, e.length, IDLength)
}

// Unwrap returns the decoding error, if any.
func (e MalformedIDError) Unwrap() error {
	return e.cause
}

// Length is the number of raw bytes the identifier decoded to, or -1 when it
// could not be decoded at all.
func (e MalformedIDError) Length() int {
	return e.length
}

// IsMalformedID checks that an error is, or wraps, a MalformedIDError.
func IsMalformedID(err error) bool {
	var e MalformedIDError
	return errors.As(err, &e)
}
