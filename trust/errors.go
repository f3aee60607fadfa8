package trust

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindMalformedCertificate Kind = "MalformedCertificate"
	KindUnsigned             Kind = "Unsigned"
	KindUnknownSigner        Kind = "UnknownSigner"
	KindBadSignature         Kind = "BadSignature"
	// KindWrongProducer marks a packet named outside its signer's namespace.
	KindWrongProducer        Kind = "WrongProducer"
)

// Error is the trust store's structured error type.
//
// Name is the packet or key name the error refers to, when known.
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Name    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("trust: %s: %v", e.Message, e.Cause)
	}
	return "trust: " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, name, msg string) error {
	return &Error{Kind: kind, Name: name, Message: msg}
}

func wrapError(kind Kind, name, msg string, cause error) error {
	if cause == nil {
		return newError(kind, name, msg)
	}
	return &Error{Kind: kind, Name: name, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if unknown.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
