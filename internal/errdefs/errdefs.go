// Package errdefs defines the error taxonomy used throughout the sandbox
// runtime. Every failure surfaced by the manager, the proxies, or the
// profile builders carries a Kind so callers can distinguish configuration
// mistakes from execution failures without string matching.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindOther is the catch-all for errors that fit no other category.
	KindOther Kind = iota
	// KindIo covers filesystem and socket failures.
	KindIo
	// KindConfig covers invalid configuration: bad domain patterns,
	// unexpandable paths, malformed settings files.
	KindConfig
	// KindExecution covers wrong manager state and child process failures.
	KindExecution
	// KindUnsupportedPlatform means no isolation mechanism exists for this OS.
	KindUnsupportedPlatform
	// KindProxy covers proxy server-level failures.
	KindProxy
	// KindDocker covers container driver failures.
	KindDocker
	// KindCommandNotFound means a required external tool is missing.
	KindCommandNotFound
	// KindViolation signals a policy breach reported out of band.
	KindViolation
	// KindSerialization covers JSON encode/decode failures.
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindConfig:
		return "config"
	case KindExecution:
		return "execution"
	case KindUnsupportedPlatform:
		return "unsupported platform"
	case KindProxy:
		return "proxy"
	case KindDocker:
		return "docker"
	case KindCommandNotFound:
		return "command not found"
	case KindViolation:
		return "violation"
	case KindSerialization:
		return "serialization"
	default:
		return "error"
	}
}

// Error is a classified error with an optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind reports the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// New returns a classified error with a static message.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Newf returns a classified error with a formatted message. Use %w in the
// format to attach a cause.
func Newf(kind Kind, format string, args ...any) error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{kind: kind, msg: wrapped.Error(), cause: errors.Unwrap(wrapped)}
}

// Wrap attaches a classification and context to an existing error.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg + ": " + err.Error(), cause: err}
}

// KindOf returns the outermost classification in err's wrap chain.
// Unclassified errors report KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindOther
}

// IsKind reports whether any classified error in err's wrap chain carries
// the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.kind == kind {
			return true
		}
		err = e.Unwrap()
	}
	return false
}
