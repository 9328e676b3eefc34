package measurement

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why a record failed to decode.
type ErrorKind int

const (
	// MissingField means a required field was absent.
	MissingField ErrorKind = iota + 1
	// TypeMismatch means a field was present with the wrong JSON shape.
	TypeMismatch
	// InvalidVariant means a value was outside an enum's closed vocabulary.
	InvalidVariant
	// UnexpectedField is only reported in strict mode.
	UnexpectedField
	// MalformedRecord means no outcome variant matched the value, or the input was not
	// valid JSON at all.
	MalformedRecord
)

func (k ErrorKind) String() string {
	switch k {
	case MissingField:
		return "missing_field"
	case TypeMismatch:
		return "type_mismatch"
	case InvalidVariant:
		return "invalid_variant"
	case UnexpectedField:
		return "unexpected_field"
	case MalformedRecord:
		return "malformed_record"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *DecodeError of the same kind.
var (
	ErrMissingField    = &DecodeError{Kind: MissingField}
	ErrTypeMismatch    = &DecodeError{Kind: TypeMismatch}
	ErrInvalidVariant  = &DecodeError{Kind: InvalidVariant}
	ErrUnexpectedField = &DecodeError{Kind: UnexpectedField}
	ErrMalformedRecord = &DecodeError{Kind: MalformedRecord}
)

// DecodeError reports the JSON path at which decoding failed and why.
type DecodeError struct {
	Kind   ErrorKind
	Path   string
	Detail string
	// Record holds the raw text of the record being decoded, when known.
	Record string

	cause error
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Path != "" {
		sb.WriteString(" at ")
		sb.WriteString(e.Path)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}

// Is matches sentinel errors that carry only a kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	if !ok {
		return false
	}
	if t.Path == "" && t.Detail == "" && t.cause == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// Root returns the innermost DecodeError, which names the field that actually failed.
func (e *DecodeError) Root() *DecodeError {
	cur := e
	for {
		next, ok := cur.cause.(*DecodeError)
		if !ok {
			return cur
		}
		cur = next
	}
}

func newDecodeError(kind ErrorKind, path, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Path: path, Detail: fmt.Sprintf(format, args...)}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}
