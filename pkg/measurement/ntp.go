package measurement

import "encoding/json"

// NTP is the payload of an NTP result. Server fields describe the last reply received.
// Timestamps are NTP-era seconds as floats.
type NTP struct {
	AF             AddressFamily       `json:"af"`
	DstAddr        *string             `json:"dst_addr,omitempty"`
	DstName        string              `json:"dst_name"`
	DstPort        *string             `json:"dst_port,omitempty"`
	LI             *LeapIndicator      `json:"li,omitempty"`
	Mode           *string             `json:"mode,omitempty"`
	Poll           *float64            `json:"poll,omitempty"`
	Precision      *float64            `json:"precision,omitempty"`
	Proto          Protocol            `json:"proto"`
	RefID          *string             `json:"ref-id,omitempty"`
	RefTS          *float64            `json:"ref-ts,omitempty"`
	Replies        []Outcome[NTPReply] `json:"result"`
	RootDelay      *float64            `json:"root-delay,omitempty"`
	RootDispersion *float64            `json:"root-dispersion,omitempty"`
	Stratum        *Stratum            `json:"stratum,omitempty"`
	Version        *int64              `json:"version,omitempty"`
}

// NTPReply is one server reply. Offset and RTT are in seconds.
type NTPReply struct {
	FinalTS        float64        `json:"final-ts"`
	Offset         float64        `json:"offset"`
	OriginTS       float64        `json:"origin-ts"`
	ReceiveTS      float64        `json:"receive-ts"`
	RTT            float64        `json:"rtt"`
	TransmitTS     float64        `json:"transmit-ts"`
	RootDispersion *float64       `json:"root-dispersion,omitempty"`
	LI             *LeapIndicator `json:"li,omitempty"`
	Precision      *float64       `json:"precision,omitempty"`
	RefID          *string        `json:"ref-id,omitempty"`
	RefTS          *float64       `json:"ref-ts,omitempty"`
	Stratum        *Stratum       `json:"stratum,omitempty"`
	RootDelay      *float64       `json:"root-delay,omitempty"`
}

func (p *NTP) decodeFields(o *object) {
	field(o, "af", &p.AF, decodeAddressFamily)
	optField(o, "dst_addr", &p.DstAddr, decodeString)
	field(o, "dst_name", &p.DstName, decodeString)
	optField(o, "dst_port", &p.DstPort, decodePort)
	optField(o, "li", &p.LI, decodeLeapIndicator)
	optField(o, "mode", &p.Mode, decodeString)
	optField(o, "poll", &p.Poll, decodeFloat)
	optField(o, "precision", &p.Precision, decodeFloat)
	field(o, "proto", &p.Proto, decodeProtocol)
	optField(o, "ref-id", &p.RefID, decodeString)
	optField(o, "ref-ts", &p.RefTS, decodeFloat)
	field(o, "result", &p.Replies, sliceOf(decodeOutcome(decodeNTPReply)))
	optField(o, "root-delay", &p.RootDelay, decodeFloat)
	optField(o, "root-dispersion", &p.RootDispersion, decodeFloat)
	optField(o, "stratum", &p.Stratum, decodeStratum)
	optField(o, "version", &p.Version, decodeInt)
}

func decodeNTPReply(d *decoder, path string, raw json.RawMessage) (NTPReply, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return NTPReply{}, err
	}
	var r NTPReply
	field(o, "final-ts", &r.FinalTS, decodeFloat)
	field(o, "offset", &r.Offset, decodeFloat)
	field(o, "origin-ts", &r.OriginTS, decodeFloat)
	field(o, "receive-ts", &r.ReceiveTS, decodeFloat)
	field(o, "rtt", &r.RTT, decodeFloat)
	field(o, "transmit-ts", &r.TransmitTS, decodeFloat)
	optField(o, "root-dispersion", &r.RootDispersion, decodeFloat)
	optField(o, "li", &r.LI, decodeLeapIndicator)
	optField(o, "precision", &r.Precision, decodeFloat)
	optField(o, "ref-id", &r.RefID, decodeString)
	optField(o, "ref-ts", &r.RefTS, decodeFloat)
	optField(o, "stratum", &r.Stratum, decodeStratum)
	optField(o, "root-delay", &r.RootDelay, decodeFloat)
	return r, o.finish()
}
