package main

import (
	"errors"
	"fmt"
)

// DecodeError means a slot payload could not be decoded. It is never retried.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type ErrorKind int

const (
	Permanent ErrorKind = iota
	Retryable
)

func (k ErrorKind) String() string {
	if k == Retryable {
		return "retryable"
	}
	return "permanent"
}

// HandlerError is returned by a handler's apply step.
type HandlerError struct {
	Kind ErrorKind
	Err  error
}

func (e *HandlerError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

func retryable(err error) error {
	return &HandlerError{Kind: Retryable, Err: err}
}

func permanent(err error) error {
	return &HandlerError{Kind: Permanent, Err: err}
}

// IsRetryable reports whether err asks for the same slot to be tried again.
// Errors that are not a HandlerError count as permanent.
func IsRetryable(err error) bool {
	var he *HandlerError
	return errors.As(err, &he) && he.Kind == Retryable
}
