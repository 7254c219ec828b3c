package types

import (
	"errors"
	"fmt"
)

// Kind tags the cause of an engine failure so callers can branch on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindDecode
	KindUnsupportedFormat
	KindModelLoad
	KindInference
	KindDimensionMismatch
	KindUndefinedSimilarity
)

var kindNames = map[Kind]string{
	KindUnknown:             "",
	KindDecode:              "decode",
	KindUnsupportedFormat:   "unsupported_format",
	KindModelLoad:           "model_load",
	KindInference:           "inference",
	KindDimensionMismatch:   "dimension_mismatch",
	KindUndefinedSimilarity: "undefined_similarity",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Recoverable is false only for model load failures, which make the engine unusable.
func (k Kind) Recoverable() bool {
	return k != KindModelLoad
}

// Error is a tagged engine error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrDecode              = &Error{Kind: KindDecode}
	ErrUnsupportedFormat   = &Error{Kind: KindUnsupportedFormat}
	ErrModelLoad           = &Error{Kind: KindModelLoad}
	ErrInference           = &Error{Kind: KindInference}
	ErrDimensionMismatch   = &Error{Kind: KindDimensionMismatch}
	ErrUndefinedSimilarity = &Error{Kind: KindUndefinedSimilarity}
)

// NewError wraps err with a kind and the operation it happened in.
func NewError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.String() + " error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Err == nil && t.Op == "" && t.Kind == e.Kind
}

// KindOf returns the kind of the first tagged error in err's chain.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}
