package measurement

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodePingOutcome(t *testing.T, raw string, opts ...Option) (Outcome[PingReply], error) {
	t.Helper()
	return decodeOutcome(decodePingReply)(newDecoder(opts), "result[0]", json.RawMessage(raw))
}

func TestOutcomeTimeout(t *testing.T) {
	o, err := decodePingOutcome(t, `{"x": "*"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Kind != OutcomeTimeout {
		t.Fatalf("expected timeout, got %v", o.Kind)
	}
}

func TestOutcomeError(t *testing.T) {
	o, err := decodePingOutcome(t, `{"error": "msg"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Kind != OutcomeError || o.Message != "msg" {
		t.Fatalf("unexpected outcome %+v", o)
	}
}

func TestOutcomeDNSError(t *testing.T) {
	o, err := decodePingOutcome(t, `{"dnserr": "msg"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Kind != OutcomeDNSError || o.Message != "msg" {
		t.Fatalf("unexpected outcome %+v", o)
	}
}

func TestOutcomeReply(t *testing.T) {
	o, err := decodePingOutcome(t, `{"rtt": 1.5, "ttl": 54}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, ok := o.Value()
	if !ok || reply.RTT != 1.5 || reply.TTL == nil || *reply.TTL != 54 {
		t.Fatalf("unexpected outcome %+v", o)
	}
}

func TestOutcomeErrorWinsOverDNSError(t *testing.T) {
	o, err := decodePingOutcome(t, `{"dnserr": "b", "error": "a", "rtt": 1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Kind != OutcomeError || o.Message != "a" {
		t.Fatalf("expected error outcome, got %+v", o)
	}
}

func TestOutcomeStarWithOtherFieldsIsNotTimeout(t *testing.T) {
	_, err := decodePingOutcome(t, `{"x": "*", "y": 1}`)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected malformed record, got %v", err)
	}
}

func TestOutcomeMalformedKeepsCause(t *testing.T) {
	_, err := decodePingOutcome(t, `{"ttl": 54}`)
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != MalformedRecord {
		t.Fatalf("expected malformed record, got %v", err)
	}
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected missing field cause, got %v", err)
	}
	if root := de.Root(); root.Path != "result[0].rtt" {
		t.Fatalf("unexpected root path %q", root.Path)
	}
}

func TestOutcomeStrictReply(t *testing.T) {
	_, err := decodePingOutcome(t, `{"rtt": 1.5, "extra": true}`, WithStrict(true))
	if !errors.Is(err, ErrUnexpectedField) {
		t.Fatalf("expected unexpected field, got %v", err)
	}
	if _, err := decodePingOutcome(t, `{"rtt": 1.5, "extra": true}`); err != nil {
		t.Fatalf("unexpected lenient error: %v", err)
	}
}

func TestOutcomeMarshal(t *testing.T) {
	cases := map[string]Outcome[PingReply]{
		`{"x":"*"}`:      Timeout[PingReply](),
		`{"error":"e"}`:  Failed[PingReply]("e"),
		`{"dnserr":"d"}`: DNSFailed[PingReply]("d"),
		`{"rtt":2.5}`:    Replied(PingReply{RTT: 2.5}),
	}
	for want, o := range cases {
		data, err := json.Marshal(o)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != want {
			t.Fatalf("expected %s got %s", want, data)
		}
	}
}
