// Package corefs holds types shared across the filesystem core: the error
// taxonomy of §7 and the small set of helpers every other internal package
// builds on.
package corefs

import (
	"errors"
	"fmt"
)

// Kind names one entry of the §7 error taxonomy. The adaptor boundary maps
// a Kind to a POSIX errno; nothing below that boundary should reason about
// errno numbers directly.
type Kind int

const (
	_ Kind = iota

	// Path errors.
	NotFound
	NotDir
	IsDir
	Exists
	Loop
	NameTooLong

	// Permission errors.
	AccessDenied
	NotOwner

	// Argument errors.
	InvalidArgument
	NotSupported

	// Resource errors.
	OutOfSpace
	OutOfInodes
	MLink
	FileTooBig

	// Consistency errors.
	CorruptData
	BadMagic
	WrongKind

	// Transient errors. WouldBlock never escapes the pipeline (§4.9); Busy
	// is surfaced to callers that try to unmount with open handles.
	WouldBlock
	Busy

	// External errors.
	IoError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case NotDir:
		return "NotDir"
	case IsDir:
		return "IsDir"
	case Exists:
		return "Exists"
	case Loop:
		return "Loop"
	case NameTooLong:
		return "NameTooLong"
	case AccessDenied:
		return "AccessDenied"
	case NotOwner:
		return "NotOwner"
	case InvalidArgument:
		return "InvalidArgument"
	case NotSupported:
		return "NotSupported"
	case OutOfSpace:
		return "OutOfSpace"
	case OutOfInodes:
		return "OutOfInodes"
	case MLink:
		return "MLink"
	case FileTooBig:
		return "FileTooBig"
	case CorruptData:
		return "CorruptData"
	case BadMagic:
		return "BadMagic"
	case WrongKind:
		return "WrongKind"
	case WouldBlock:
		return "WouldBlock"
	case Busy:
		return "Busy"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across every core API. It
// carries the taxonomy Kind plus optional context (a virtual address, a
// path component) and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// Wrap builds an *Error of the given kind around a lower-level cause.
func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

// KindOf extracts the taxonomy Kind from err, defaulting to IoError for
// anything that didn't originate as an *Error — an unclassified failure is
// treated as fatal-external rather than silently downgraded.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return IoError
}

// Is reports whether err is (or wraps) an *Error of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// Invariant panics on a true programmer error — corrupted in-process state
// that no caller could have triggered through the public API. Every other
// failure, including on-disk corruption, must be a typed Error (§9).
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("corefs: invariant violated: "+format, args...))
	}
}
