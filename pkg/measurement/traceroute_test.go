package measurement

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func equalGroups(a, b [][]string) bool {
	return slices.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}

func decodeReply(t *testing.T, raw string) TraceReply {
	t.Helper()
	r, err := decodeTraceReply(lenient, "", json.RawMessage(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func encodedKeys(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	return m
}

func TestITTLDefaultsToOne(t *testing.T) {
	r := decodeReply(t, `{"from":"10.0.0.1","ttl":1,"size":28,"rtt":1.0}`)
	if r.ITTL != 1 {
		t.Fatalf("expected ittl 1, got %d", r.ITTL)
	}
	if _, ok := encodedKeys(t, r)["ittl"]; ok {
		t.Fatalf("expected ittl to be omitted when 1")
	}
	r.ITTL = 2
	m := encodedKeys(t, r)
	if m["ittl"] != float64(2) {
		t.Fatalf("expected ittl 2 in encoding, got %v", m["ittl"])
	}
}

func TestTraceReplyRoundTrip(t *testing.T) {
	in := decodeReply(t, `{"from":"10.0.0.1","ttl":250,"size":28,"rtt":3.25,"ittl":0,"err":"H","mtu":1400}`)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	out := decodeReply(t, string(data))
	if out.ITTL != 0 || out.From != in.From || out.RTT != in.RTT || out.Err.ICMP != ICMPHostUnreachable {
		t.Fatalf("round trip mismatch: %+v vs %+v", in, out)
	}
	if out.MTU == nil || *out.MTU != 1400 {
		t.Fatalf("expected mtu 1400, got %v", out.MTU)
	}
}

func TestTraceReplyLate(t *testing.T) {
	r := decodeReply(t, `{"from":"10.0.0.1","ttl":60,"size":28,"late":3}`)
	if n, late := r.RTT.Late(); !late || n != 3 {
		t.Fatalf("expected late by 3, got %d %v", n, late)
	}
	if _, ok := r.RTT.Milliseconds(); ok {
		t.Fatalf("late reply must not report milliseconds")
	}
	m := encodedKeys(t, r)
	if _, ok := m["rtt"]; ok {
		t.Fatalf("late reply encoded rtt: %v", m)
	}
	if m["late"] != float64(3) {
		t.Fatalf("expected late 3, got %v", m["late"])
	}
}

func TestTraceReplyRTTAndLateConflict(t *testing.T) {
	_, err := decodeTraceReply(lenient, "r", json.RawMessage(`{"from":"a","ttl":1,"size":1,"rtt":1,"late":1}`))
	if !errors.Is(err, ErrInvalidVariant) {
		t.Fatalf("expected invalid variant, got %v", err)
	}
	_, err = decodeTraceReply(lenient, "r", json.RawMessage(`{"from":"a","ttl":1,"size":1}`))
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != MissingField || de.Path != "r.rtt" {
		t.Fatalf("expected missing rtt, got %v", err)
	}
}

func TestICMPExtensionDigitFlag(t *testing.T) {
	r := decodeReply(t, `{"from":"a","ttl":1,"size":1,"rtt":1,
		"icmpext":{"version":2,"rfc4884":0,"obj":[{"class":1,"type":1}]}}`)
	if r.ICMPExt == nil || bool(r.ICMPExt.RFC4884) || len(r.ICMPExt.Objects) != 1 {
		t.Fatalf("unexpected extension %+v", r.ICMPExt)
	}
	_, err := decodeTraceReply(lenient, "", json.RawMessage(`{"from":"a","ttl":1,"size":1,"rtt":1,
		"icmpext":{"version":2,"rfc4884":2,"obj":[]}}`))
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != InvalidVariant || de.Path != "icmpext.rfc4884" {
		t.Fatalf("expected invalid rfc4884 flag, got %v", err)
	}
}

func routeScenario() *TracerouteResult {
	failure := "sendto failed"
	return &TracerouteResult{
		Metadata: Metadata{From: "P1"},
		Traceroute: Traceroute{
			DstName: "example.com",
			Hops: []Hop{
				{Number: 1, Replies: []Outcome[TraceReply]{
					Replied(TraceReply{From: "10.0.0.1", ITTL: 1, RTT: OnTime(1)}),
					Replied(TraceReply{From: "10.0.0.1", ITTL: 1, RTT: OnTime(1)}),
					Replied(TraceReply{From: "10.0.0.2", ITTL: 1, RTT: OnTime(1)}),
				}},
				{Number: 2, Error: &failure},
			},
		},
	}
}

func TestRoute(t *testing.T) {
	got := slices.Collect(routeScenario().Route())
	want := [][]string{{"P1"}, {"10.0.0.1", "10.0.0.2"}, {}, {"example.com"}}
	if !equalGroups(got, want) {
		t.Fatalf("expected %q got %q", want, got)
	}
}

func TestRouteWithTimeouts(t *testing.T) {
	got := slices.Collect(routeScenario().RouteWithTimeouts())
	want := [][]string{{"10.0.0.1", "10.0.0.2"}, {"Timeout 0: 10.0.0.1,10.0.0.2"}, {"example.com"}}
	if !equalGroups(got, want) {
		t.Fatalf("expected %q got %q", want, got)
	}
}

func TestRouteWithTimeoutsNumbersRun(t *testing.T) {
	res, err := DecodeTraceroute([]byte(tracerouteRecord))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := slices.Collect(res.RouteWithTimeouts())
	want := [][]string{
		{"10.0.0.1", "10.0.0.2"},
		{"Timeout 0: 10.0.0.1,10.0.0.2"},
		{"Timeout 1: 10.0.0.1,10.0.0.2"},
		{"93.184.216.34"},
		{"example.com"},
	}
	if !equalGroups(got, want) {
		t.Fatalf("expected %q got %q", want, got)
	}
}

func TestRouteWithTimeoutsRepeatsEqualHops(t *testing.T) {
	res := &TracerouteResult{
		Metadata: Metadata{From: "P1"},
		Traceroute: Traceroute{
			DstName: "10.0.0.9",
			Hops: []Hop{
				{Number: 1, Replies: []Outcome[TraceReply]{Replied(TraceReply{From: "10.0.0.9"})}},
				{Number: 2, Replies: []Outcome[TraceReply]{Replied(TraceReply{From: "10.0.0.9"})}},
			},
		},
	}
	got := slices.Collect(res.RouteWithTimeouts())
	want := [][]string{{"10.0.0.9"}, {"10.0.0.9"}, {"10.0.0.9"}}
	if !equalGroups(got, want) {
		t.Fatalf("expected %q got %q", want, got)
	}
}

func TestRouteStopsEarly(t *testing.T) {
	count := 0
	for range routeScenario().RouteWithTimeouts() {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("expected a single element, got %d", count)
	}
}
