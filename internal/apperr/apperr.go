// Package apperr classifies engine failures so callers can present them
// without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	KindUnknown    Kind = iota
	KindInput           // unsupported media type
	KindDecode          // undecodable bytes
	KindState           // operation attempted in the wrong session state
	KindValidation      // bad arguments, rejected before any work starts
	KindEncode          // encoder unavailable or encode failure
	KindIO              // archive or save failure
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindDecode:
		return "decode"
	case KindState:
		return "state"
	case KindValidation:
		return "validation"
	case KindEncode:
		return "encode"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on the kind alone.
var (
	ErrInput      = &Error{Kind: KindInput}
	ErrDecode     = &Error{Kind: KindDecode}
	ErrState      = &Error{Kind: KindState}
	ErrValidation = &Error{Kind: KindValidation}
	ErrEncode     = &Error{Kind: KindEncode}
	ErrIO         = &Error{Kind: KindIO}
)

// Specific conditions, always wrapped in an *Error of the matching kind.
var (
	ErrNoSource           = errors.New("no audio loaded")
	ErrBusy               = errors.New("another operation is in progress")
	ErrNotContiguous      = errors.New("segments not contiguous")
	ErrEmptyName          = errors.New("segment name is empty")
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	ErrUnknownSegment     = errors.New("unknown segment")
)

// Error is a classified engine failure.
type Error struct {
	Kind    Kind
	Op      string // operation, e.g. "export", "merge"
	Segment string // segment name, when the failure is tied to one
	Step    string // pipeline step within Op, e.g. "render", "encode"
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Segment != "" {
		msg += fmt.Sprintf(" (segment %q", e.Segment)
		if e.Step != "" {
			msg += ", step " + e.Step
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is a bare kind sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Segment == "" && t.Kind == e.Kind
}

// New creates an *Error with a plain message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is Wrap with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
