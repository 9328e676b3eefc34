package measurement

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

var allRecords = map[MeasurementType]string{
	TypePing:       pingRecord,
	TypeTraceroute: tracerouteRecord,
	TypeDNS:        dnsResultSetRecord,
	TypeHTTP:       httpRecord,
	TypeNTP:        ntpRecord,
	TypeTLS:        tlsRecord,
}

func TestDecodeAllTypesLenientAndStrict(t *testing.T) {
	for kind, record := range allRecords {
		for _, strict := range []bool{false, true} {
			res, err := Decode([]byte(record), WithStrict(strict))
			if err != nil {
				t.Fatalf("unexpected error decoding %s (strict=%v): %v", kind, strict, err)
			}
			if res.Kind() != kind {
				t.Fatalf("expected %s got %s", kind, res.Kind())
			}
			if res.Meta().ProbeID != 1001 {
				t.Fatalf("unexpected probe id %d", res.Meta().ProbeID)
			}
		}
	}
}

func TestDecodePingFields(t *testing.T) {
	res, err := DecodePing([]byte(pingRecord))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DstName != "193.0.14.129" || res.Sent != 3 || res.Rcvd != 2 || res.Avg != 21.8 {
		t.Fatalf("unexpected payload %+v", res.Ping)
	}
	if res.MeasurementID != 1001 || res.Timestamp.Unix() != 1700000000 || res.Firmware != 4790 {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
	if res.FirmwareVersion == nil || *res.FirmwareVersion != "2.6.2" {
		t.Fatalf("unexpected mver %v", res.FirmwareVersion)
	}
	if res.Step != nil {
		t.Fatalf("expected null step to decode as absent")
	}
	if len(res.Replies) != 3 || res.Replies[2].Kind != OutcomeTimeout {
		t.Fatalf("unexpected replies %+v", res.Replies)
	}
	if dup := res.Replies[1].Reply.Dup; dup == nil || *dup != 1 {
		t.Fatalf("expected duplicate marker on second reply")
	}
}

func TestDecodeMissingMetadata(t *testing.T) {
	record := strings.Replace(pingRecord, `"prb_id":1001,`, "", 1)
	_, err := DecodePing([]byte(record))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if de.Kind != MissingField || de.Path != "prb_id" {
		t.Fatalf("unexpected error %v", de)
	}
	if de.Record != record {
		t.Fatalf("expected raw record on error")
	}
}

func TestDecodeTypeMismatchPath(t *testing.T) {
	record := strings.Replace(tracerouteRecord, `"rtt":1.1`, `"rtt":"1.1"`, 1)
	_, err := DecodeTraceroute([]byte(record))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch cause, got %v", err)
	}
	if root := de.Root(); root.Path != "result[0].result[1].rtt" {
		t.Fatalf("unexpected path %q", root.Path)
	}
}

func TestStrictRejectsUnknownTopLevelField(t *testing.T) {
	record := strings.Replace(httpRecord, `"uri":`, `"zz_new":1,"uri":`, 1)
	if _, err := DecodeHTTP([]byte(record)); err != nil {
		t.Fatalf("unexpected lenient error: %v", err)
	}
	_, err := DecodeHTTP([]byte(record), WithStrict(true))
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != UnexpectedField || de.Path != "zz_new" {
		t.Fatalf("expected unexpected field zz_new, got %v", err)
	}
}

func TestStrictRejectsUnknownNestedField(t *testing.T) {
	record := strings.Replace(ntpRecord, `"offset":-0.0012,`, `"offset":-0.0012,"leap":0,`, 1)
	_, err := DecodeNTP([]byte(record), WithStrict(true))
	if !errors.Is(err, ErrUnexpectedField) {
		t.Fatalf("expected unexpected field, got %v", err)
	}
	var de *DecodeError
	errors.As(err, &de)
	if root := de.Root(); root.Path != "result[0].leap" {
		t.Fatalf("unexpected path %q", root.Path)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"wifi"}`))
	if !errors.Is(err, ErrInvalidVariant) {
		t.Fatalf("expected invalid variant for wifi, got %v", err)
	}
	_, err = Decode([]byte(`{"type":"carrier-pigeon"}`))
	if !errors.Is(err, ErrInvalidVariant) {
		t.Fatalf("expected invalid variant, got %v", err)
	}
	_, err = Decode([]byte(`{"fw":1}`))
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected missing type, got %v", err)
	}
	_, err = Decode([]byte(`[1,2]`))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for non-object, got %v", err)
	}
}

func TestDecodeTruncatedRecordIsMalformed(t *testing.T) {
	record := `{"fw":4790,"type":"ping"`
	_, err := Decode([]byte(record))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected malformed record, got %v", err)
	}
	if errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("truncated record reported as type mismatch: %v", err)
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected invalid JSON in message, got %q", err.Error())
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Record != record {
		t.Fatalf("expected raw record on error, got %v", err)
	}
	_, err = DecodePing([]byte(strings.TrimSuffix(pingRecord, "}")), WithStrict(true))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected malformed record from DecodePing, got %v", err)
	}
}

func TestKindOfRejectsNonJSONBytes(t *testing.T) {
	if got := kindOf([]byte("\xff")); got != "invalid" {
		t.Fatalf("unexpected kind %q", got)
	}
	if got := kindOf([]byte("-1.5")); got != "number" {
		t.Fatalf("unexpected kind %q", got)
	}
}

func TestResultTypesUnmarshalThroughDecoder(t *testing.T) {
	var doc struct {
		Trace TracerouteResult `json:"trace"`
		Ping  *PingResult      `json:"ping"`
	}
	data := `{"trace":` + tracerouteRecord + `,"ping":` + pingRecord + `}`
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Trace.Hops) != 4 || doc.Trace.DstName != "example.com" {
		t.Fatalf("unexpected traceroute %+v", doc.Trace.Traceroute)
	}
	if doc.Trace.Hops[2].Replies[0].Kind != OutcomeTimeout {
		t.Fatalf("expected timeout at hop 3, got %v", doc.Trace.Hops[2].Replies[0].Kind)
	}
	if doc.Ping == nil || doc.Ping.Kind() != TypePing {
		t.Fatalf("expected ping result, got %+v", doc.Ping)
	}

	bad := strings.Replace(tracerouteRecord, `"rtt":1.1`, `"rtt":"1.1"`, 1)
	var tr TracerouteResult
	err := json.Unmarshal([]byte(bad), &tr)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	var hop Hop
	if err := json.Unmarshal([]byte(`{"hop":3,"result":[{"x":"*"},{"from":"10.0.0.9","ttl":61,"size":28,"rtt":2.5}]}`), &hop); err != nil {
		t.Fatalf("unexpected hop error: %v", err)
	}
	if hop.Number != 3 || len(hop.Replies) != 2 || hop.Replies[1].Reply.From != "10.0.0.9" {
		t.Fatalf("unexpected hop %+v", hop)
	}
}

func TestDecodeFailureReturnsNilResult(t *testing.T) {
	res, err := Decode([]byte(`{"type":"ping"}`))
	if err == nil {
		t.Fatalf("expected error")
	}
	if res != nil {
		t.Fatalf("expected nil result, got %#v", res)
	}
}

func TestEnvelopeEncodesFlat(t *testing.T) {
	res, err := DecodeHTTP([]byte(httpRecord))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	again, err := DecodeHTTP(data, WithStrict(true))
	if err != nil {
		t.Fatalf("unexpected error decoding re-encoded record: %v", err)
	}
	if again.URI != res.URI || again.ProbeID != res.ProbeID || len(again.Results) != 2 {
		t.Fatalf("re-encoded record differs: %+v", again)
	}
	if again.ResolveDuration == nil || *again.ResolveDuration != 3.4 {
		t.Fatalf("expected ttr to survive encoding")
	}
}

func TestTracerouteEncodesAndDecodesStrict(t *testing.T) {
	res, err := DecodeTraceroute([]byte(tracerouteRecord))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	again, err := DecodeTraceroute(data, WithStrict(true))
	if err != nil {
		t.Fatalf("unexpected error decoding re-encoded record: %v", err)
	}
	if len(again.Hops) != 4 || !again.Hops[1].IsError() || again.Hops[1].Number != 2 {
		t.Fatalf("unexpected hops %+v", again.Hops)
	}
	if len(again.Hops[0].Replies) != 3 {
		t.Fatalf("expected placeholder to stay dropped, got %d replies", len(again.Hops[0].Replies))
	}
}

func TestTLSValidate(t *testing.T) {
	res, err := DecodeTLS([]byte(tlsRecord))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	record := strings.Replace(tlsRecord, `"af":4,`, `"af":4,"alert":{"level":2,"description":40},`, 1)
	res, err = DecodeTLS([]byte(record))
	if err != nil {
		t.Fatalf("alert with cert must still decode: %v", err)
	}
	if !errors.Is(res.Validate(), ErrAlertWithCertificate) {
		t.Fatalf("expected alert/cert conflict")
	}
}

func TestDecodeNTPStratum(t *testing.T) {
	res, err := DecodeNTP([]byte(ntpRecord))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := res.Stratum.Distance(); !ok || n != 1 {
		t.Fatalf("unexpected stratum %v", res.Stratum)
	}
	if res.LI == nil || *res.LI != LeapNone {
		t.Fatalf("unexpected leap indicator %v", res.LI)
	}
	if res.Replies[1].Kind != OutcomeTimeout {
		t.Fatalf("expected timeout, got %v", res.Replies[1].Kind)
	}
}
