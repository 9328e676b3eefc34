package measurement

import (
	"encoding/json"
	"fmt"
)

// OutcomeKind tells which shape an Outcome was decoded from.
type OutcomeKind int

const (
	OutcomeTimeout OutcomeKind = iota + 1
	OutcomeError
	OutcomeDNSError
	OutcomeReply
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	case OutcomeDNSError:
		return "dnserr"
	case OutcomeReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Outcome is one entry of a result list: a timeout marker, an error, a DNS resolution
// error, or a reply of type R. Message is set for the two error kinds and Reply only
// for OutcomeReply.
type Outcome[R any] struct {
	Kind    OutcomeKind
	Message string
	Reply   *R
}

// Timeout is the outcome of a probe that got no answer.
func Timeout[R any]() Outcome[R] {
	return Outcome[R]{Kind: OutcomeTimeout}
}

// Failed is an outcome carrying the probe's error text.
func Failed[R any](msg string) Outcome[R] {
	return Outcome[R]{Kind: OutcomeError, Message: msg}
}

// DNSFailed is an outcome whose target name did not resolve.
func DNSFailed[R any](msg string) Outcome[R] {
	return Outcome[R]{Kind: OutcomeDNSError, Message: msg}
}

// Replied wraps a successful reply.
func Replied[R any](reply R) Outcome[R] {
	return Outcome[R]{Kind: OutcomeReply, Reply: &reply}
}

// Value returns the reply and whether there was one.
func (o Outcome[R]) Value() (R, bool) {
	if o.Kind != OutcomeReply || o.Reply == nil {
		var zero R
		return zero, false
	}
	return *o.Reply, true
}

// Outcome has no UnmarshalJSON since the reply schema depends on R. It is decoded as
// part of the enclosing result.
func (o Outcome[R]) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutcomeTimeout:
		return []byte(`{"x":"*"}`), nil
	case OutcomeError:
		return json.Marshal(map[string]string{"error": o.Message})
	case OutcomeDNSError:
		return json.Marshal(map[string]string{"dnserr": o.Message})
	case OutcomeReply:
		if o.Reply == nil {
			return nil, fmt.Errorf("encode outcome: reply kind without reply")
		}
		return json.Marshal(o.Reply)
	default:
		return nil, fmt.Errorf("encode outcome: unknown kind %d", int(o.Kind))
	}
}

// decodeOutcome matches shapes in a fixed order: a lone "*" value is a timeout, then an
// "error" key, then a "dnserr" key, and only then the full reply schema. Other keys next to
// "error" or "dnserr" are context and are not checked against the schema.
func decodeOutcome[R any](reply decodeFunc[R]) decodeFunc[Outcome[R]] {
	return func(d *decoder, path string, raw json.RawMessage) (Outcome[R], error) {
		o, err := d.object(path, raw)
		if err != nil {
			return Outcome[R]{}, err
		}
		if len(o.fields) == 1 {
			for _, v := range o.fields {
				if s, err := decodeString(d, path, v); err == nil && s == "*" {
					return Timeout[R](), nil
				}
			}
		}
		if o.has("error") {
			var msg string
			field(o, "error", &msg, decodeMessage)
			if o.err != nil {
				return Outcome[R]{}, o.err
			}
			return Failed[R](msg), nil
		}
		if o.has("dnserr") {
			var msg string
			field(o, "dnserr", &msg, decodeMessage)
			if o.err != nil {
				return Outcome[R]{}, o.err
			}
			return DNSFailed[R](msg), nil
		}
		r, err := reply(d, path, raw)
		if err != nil {
			return Outcome[R]{}, &DecodeError{
				Kind:   MalformedRecord,
				Path:   path,
				Detail: "value matches no outcome shape",
				cause:  err,
			}
		}
		return Replied(r), nil
	}
}

// decodeMessage takes error text; a non-string error value keeps its raw JSON text.
func decodeMessage(d *decoder, path string, raw json.RawMessage) (string, error) {
	switch kindOf(raw) {
	case "string":
		return decodeString(d, path, raw)
	case "object", "array":
		return "", mismatch(path, "error message", raw)
	default:
		return string(raw), nil
	}
}
