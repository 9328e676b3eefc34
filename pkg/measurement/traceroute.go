package measurement

import (
	"encoding/json"
	"iter"
)

// Traceroute is the payload of a traceroute result.
type Traceroute struct {
	AF      AddressFamily `json:"af"`
	DstAddr *string       `json:"dst_addr,omitempty"`
	DstName string        `json:"dst_name"`
	EndTime UnixTime      `json:"endtime"`
	ParisID *int64        `json:"paris_id,omitempty"`
	Proto   Protocol      `json:"proto"`
	Hops    []Hop         `json:"result"`
	Size    int64         `json:"size"`
}

// Hop is one TTL step. A hop either failed as a whole, in which case Error is set, or
// carries the replies received for its probes.
type Hop struct {
	Number  int64
	Error   *string
	Replies []Outcome[TraceReply]
}

// IsError reports whether the hop failed as a whole.
func (h Hop) IsError() bool {
	return h.Error != nil
}

// SuccessfulReplies yields the replies of the hop, skipping timeouts and errors.
func (h Hop) SuccessfulReplies() iter.Seq[TraceReply] {
	return func(yield func(TraceReply) bool) {
		for _, outcome := range h.Replies {
			reply, ok := outcome.Value()
			if !ok {
				continue
			}
			if !yield(reply) {
				return
			}
		}
	}
}

func (h Hop) MarshalJSON() ([]byte, error) {
	if h.Error != nil {
		// Error hops may have no hop number; zero is never a valid one.
		return json.Marshal(struct {
			Number int64  `json:"hop,omitempty"`
			Error  string `json:"error"`
		}{h.Number, *h.Error})
	}
	replies := h.Replies
	if replies == nil {
		replies = []Outcome[TraceReply]{}
	}
	return json.Marshal(struct {
		Number  int64                 `json:"hop"`
		Replies []Outcome[TraceReply] `json:"result"`
	}{h.Number, replies})
}

func (h *Hop) UnmarshalJSON(data []byte) error {
	v, err := decodeHop(lenient, "", data)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// TraceReply is one probe's answer at a hop.
type TraceReply struct {
	Err     *TraceError    `json:"err,omitempty"`
	From    string         `json:"from"`
	ITTL    int64          `json:"-"`
	RTT     RoundTripTime  `json:"-"`
	MTU     *int64         `json:"mtu,omitempty"`
	Size    int64          `json:"size"`
	TTL     int64          `json:"ttl"`
	Flags   *string        `json:"flags,omitempty"`
	ICMPExt *ICMPExtension `json:"icmpext,omitempty"`
	// Edst is the destination address of the packet that triggered the reply, when it differs.
	Edst       *string `json:"edst,omitempty"`
	ITOS       *int64  `json:"itos,omitempty"`
	DstOptSize *int64  `json:"dstoptsize,omitempty"`
	HbhOptSize *int64  `json:"hbhoptsize,omitempty"`
}

// ittl is omitted on the wire when it is 1.
const defaultITTL = 1

func (r TraceReply) MarshalJSON() ([]byte, error) {
	type plain TraceReply
	aux := struct {
		plain
		ITTL *int64   `json:"ittl,omitempty"`
		RTT  *float64 `json:"rtt,omitempty"`
		Late *uint32  `json:"late,omitempty"`
	}{plain: plain(r)}
	if r.ITTL != defaultITTL {
		ittl := r.ITTL
		aux.ITTL = &ittl
	}
	if n, late := r.RTT.Late(); late {
		aux.Late = &n
	} else {
		ms, _ := r.RTT.Milliseconds()
		aux.RTT = &ms
	}
	return json.Marshal(aux)
}

func (r *TraceReply) UnmarshalJSON(data []byte) error {
	v, err := decodeTraceReply(lenient, "", data)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// RoundTripTime is either the measured round trip in milliseconds or, for a reply that
// arrived after the probe gave up on it, the number of packets it was late by.
type RoundTripTime struct {
	ms     float64
	late   uint32
	isLate bool
}

func OnTime(ms float64) RoundTripTime {
	return RoundTripTime{ms: ms}
}

func LateBy(packets uint32) RoundTripTime {
	return RoundTripTime{late: packets, isLate: true}
}

// Milliseconds returns the round trip and false for late replies.
func (r RoundTripTime) Milliseconds() (float64, bool) {
	return r.ms, !r.isLate
}

// Late returns the late count and whether the reply was late.
func (r RoundTripTime) Late() (uint32, bool) {
	return r.late, r.isLate
}

// ICMPExtension is the RFC 4884 extension structure attached to an ICMP reply.
type ICMPExtension struct {
	Version int64        `json:"version"`
	RFC4884 DigitBool    `json:"rfc4884"`
	Objects []ICMPObject `json:"obj"`
}

type ICMPObject struct {
	Class int64       `json:"class"`
	Type  int64       `json:"type"`
	MPLS  []MPLSEntry `json:"mpls,omitempty"`
}

// MPLSEntry is one label stack entry.
type MPLSEntry struct {
	Exp   int64 `json:"exp"`
	Label int64 `json:"label"`
	S     int64 `json:"s"`
	TTL   int64 `json:"ttl"`
}

func (t *Traceroute) decodeFields(o *object) {
	field(o, "af", &t.AF, decodeAddressFamily)
	optField(o, "dst_addr", &t.DstAddr, decodeString)
	field(o, "dst_name", &t.DstName, decodeString)
	field(o, "endtime", &t.EndTime, decodeUnixTime)
	optField(o, "paris_id", &t.ParisID, decodeInt)
	field(o, "proto", &t.Proto, decodeProtocol)
	field(o, "result", &t.Hops, sliceOf(decodeHop))
	field(o, "size", &t.Size, decodeInt)
}

func decodeHop(d *decoder, path string, raw json.RawMessage) (Hop, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return Hop{}, err
	}
	var h Hop
	if o.has("error") {
		var number *int64
		optField(o, "hop", &number, decodeInt)
		field(o, "error", &h.Error, func(d *decoder, path string, raw json.RawMessage) (*string, error) {
			msg, err := decodeMessage(d, path, raw)
			return &msg, err
		})
		o.known("result")
		if number != nil {
			h.Number = *number
		}
		return h, o.finish()
	}
	field(o, "hop", &h.Number, decodeInt)
	field(o, "result", &h.Replies, skipEmpty(decodeOutcome(decodeTraceReply)))
	return h, o.finish()
}

func decodeTraceReply(d *decoder, path string, raw json.RawMessage) (TraceReply, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return TraceReply{}, err
	}
	var r TraceReply
	optField(o, "err", &r.Err, decodeTraceError)
	field(o, "from", &r.From, decodeString)

	var ittl *int64
	optField(o, "ittl", &ittl, decodeInt)
	r.ITTL = defaultITTL
	if ittl != nil {
		r.ITTL = *ittl
	}

	switch hasRTT, hasLate := o.has("rtt"), o.has("late"); {
	case hasRTT && hasLate:
		o.fail(newDecodeError(InvalidVariant, joinPath(path, "rtt"), "rtt and late are mutually exclusive"))
	case hasLate:
		var late uint32
		field(o, "late", &late, decodeUint32)
		r.RTT = LateBy(late)
	default:
		var ms float64
		field(o, "rtt", &ms, decodeFloat)
		r.RTT = OnTime(ms)
	}

	optField(o, "mtu", &r.MTU, decodeInt)
	field(o, "size", &r.Size, decodeInt)
	field(o, "ttl", &r.TTL, decodeInt)
	optField(o, "flags", &r.Flags, decodeString)
	optField(o, "icmpext", &r.ICMPExt, decodeICMPExtension)
	optField(o, "edst", &r.Edst, decodeString)
	optField(o, "itos", &r.ITOS, decodeInt)
	optField(o, "dstoptsize", &r.DstOptSize, decodeInt)
	optField(o, "hbhoptsize", &r.HbhOptSize, decodeInt)
	return r, o.finish()
}

func decodeICMPExtension(d *decoder, path string, raw json.RawMessage) (ICMPExtension, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return ICMPExtension{}, err
	}
	var ext ICMPExtension
	field(o, "version", &ext.Version, decodeInt)
	field(o, "rfc4884", &ext.RFC4884, decodeDigitBool)
	field(o, "obj", &ext.Objects, sliceOf(decodeICMPObject))
	return ext, o.finish()
}

func decodeICMPObject(d *decoder, path string, raw json.RawMessage) (ICMPObject, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return ICMPObject{}, err
	}
	var obj ICMPObject
	field(o, "class", &obj.Class, decodeInt)
	field(o, "type", &obj.Type, decodeInt)
	optSlice(o, "mpls", &obj.MPLS, sliceOf(decodeMPLSEntry))
	return obj, o.finish()
}

func decodeMPLSEntry(d *decoder, path string, raw json.RawMessage) (MPLSEntry, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return MPLSEntry{}, err
	}
	var e MPLSEntry
	field(o, "exp", &e.Exp, decodeInt)
	field(o, "label", &e.Label, decodeInt)
	field(o, "s", &e.S, decodeInt)
	field(o, "ttl", &e.TTL, decodeInt)
	return e, o.finish()
}
