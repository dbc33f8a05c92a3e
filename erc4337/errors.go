package erc4337

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by EncodingError.
var (
	ErrNilValue      = errors.New("value is nil")
	ErrNegativeValue = errors.New("value is negative")
	ErrValueOverflow = errors.New("value exceeds field width")
)

// EncodingError reports a value that does not fit the fixed-width field it is
// destined for, or an ABI encoding failure.
type EncodingError struct {
	Field string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("erc4337: cannot encode %s: %v", e.Field, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// MissingFieldError reports a required field that is unset in both the partial
// operation and the defaults table.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("erc4337: missing required field %s", e.Field)
}

// SigningError reports malformed key material or a rejected signing request.
// Key bytes are never part of the message, and the key slice passed to Sign has
// already been zeroed when it is returned.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("erc4337: signing failed: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}
