package measurement

import "encoding/json"

// Ping is the payload of a ping result. Min, Avg and Max are in milliseconds and are -1
// when no reply arrived.
type Ping struct {
	AF      AddressFamily        `json:"af"`
	Avg     float64              `json:"avg"`
	DstAddr *string              `json:"dst_addr,omitempty"`
	DstName string               `json:"dst_name"`
	Dup     int64                `json:"dup"`
	Max     float64              `json:"max"`
	Min     float64              `json:"min"`
	Proto   Protocol             `json:"proto"`
	Rcvd    int64                `json:"rcvd"`
	Replies []Outcome[PingReply] `json:"result"`
	Sent    int64                `json:"sent"`
	Size    int64                `json:"size"`
	TTL     *int64               `json:"ttl,omitempty"`
	Step    *int64               `json:"step,omitempty"`
}

// PingReply is one echo reply.
type PingReply struct {
	RTT     float64 `json:"rtt"`
	SrcAddr *string `json:"src_addr,omitempty"`
	TTL     *int64  `json:"ttl,omitempty"`
	Dup     *int64  `json:"dup,omitempty"`
}

func (p *Ping) decodeFields(o *object) {
	field(o, "af", &p.AF, decodeAddressFamily)
	field(o, "avg", &p.Avg, decodeFloat)
	optField(o, "dst_addr", &p.DstAddr, decodeString)
	field(o, "dst_name", &p.DstName, decodeString)
	field(o, "dup", &p.Dup, decodeInt)
	field(o, "max", &p.Max, decodeFloat)
	field(o, "min", &p.Min, decodeFloat)
	field(o, "proto", &p.Proto, decodeProtocol)
	field(o, "rcvd", &p.Rcvd, decodeInt)
	field(o, "result", &p.Replies, sliceOf(decodeOutcome(decodePingReply)))
	field(o, "sent", &p.Sent, decodeInt)
	field(o, "size", &p.Size, decodeInt)
	optField(o, "ttl", &p.TTL, decodeInt)
	optField(o, "step", &p.Step, decodeInt)
}

func decodePingReply(d *decoder, path string, raw json.RawMessage) (PingReply, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return PingReply{}, err
	}
	var r PingReply
	field(o, "rtt", &r.RTT, decodeFloat)
	optField(o, "src_addr", &r.SrcAddr, decodeString)
	optField(o, "ttl", &r.TTL, decodeInt)
	optField(o, "dup", &r.Dup, decodeInt)
	return r, o.finish()
}
