package measurement

import "encoding/json"

// HTTP is the payload of an HTTP result. The envelope's ResolveDuration carries the
// time spent resolving the URI host.
type HTTP struct {
	URI     string               `json:"uri"`
	Results []Outcome[HTTPReply] `json:"result"`
}

// HTTPReply is the outcome of one HTTP request. Timings are in milliseconds.
type HTTPReply struct {
	AF         AddressFamily `json:"af"`
	BodySize   *int64        `json:"bsize,omitempty"`
	DstAddr    string        `json:"dst_addr"`
	Err        *string       `json:"err,omitempty"`
	Header     []string      `json:"header,omitempty"`
	HeaderSize *int64        `json:"hsize,omitempty"`
	Method     HTTPMethod    `json:"method"`
	ReadTiming []ReadTiming  `json:"readtiming,omitempty"`
	Status     *int64        `json:"res,omitempty"`
	RT         *float64      `json:"rt,omitempty"`
	SrcAddr    *string       `json:"src_addr,omitempty"`
	SubID      *int64        `json:"subid,omitempty"`
	SubMax     *int64        `json:"submax,omitempty"`
	Time       *UnixTime     `json:"time,omitempty"`
	TTC        *float64      `json:"ttc,omitempty"`
	TTFB       *float64      `json:"ttfb,omitempty"`
	TTR        *float64      `json:"ttr,omitempty"`
	Version    *string       `json:"ver,omitempty"`
}

// ReadTiming records that Offset bytes of the body had been read after Time milliseconds.
type ReadTiming struct {
	Offset int64   `json:"o"`
	Time   float64 `json:"t"`
}

func (p *HTTP) decodeFields(o *object) {
	field(o, "uri", &p.URI, decodeString)
	field(o, "result", &p.Results, sliceOf(decodeOutcome(decodeHTTPReply)))
}

func decodeHTTPReply(d *decoder, path string, raw json.RawMessage) (HTTPReply, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return HTTPReply{}, err
	}
	var r HTTPReply
	field(o, "af", &r.AF, decodeAddressFamily)
	optField(o, "bsize", &r.BodySize, decodeInt)
	field(o, "dst_addr", &r.DstAddr, decodeString)
	optField(o, "err", &r.Err, decodeString)
	optSlice(o, "header", &r.Header, sliceOf(decodeString))
	optField(o, "hsize", &r.HeaderSize, decodeInt)
	field(o, "method", &r.Method, decodeHTTPMethod)
	optSlice(o, "readtiming", &r.ReadTiming, sliceOf(decodeReadTiming))
	optField(o, "res", &r.Status, decodeInt)
	optField(o, "rt", &r.RT, decodeFloat)
	optField(o, "src_addr", &r.SrcAddr, decodeString)
	optField(o, "subid", &r.SubID, decodeInt)
	optField(o, "submax", &r.SubMax, decodeInt)
	optField(o, "time", &r.Time, decodeUnixTime)
	optField(o, "ttc", &r.TTC, decodeFloat)
	optField(o, "ttfb", &r.TTFB, decodeFloat)
	optField(o, "ttr", &r.TTR, decodeFloat)
	optField(o, "ver", &r.Version, decodeString)
	return r, o.finish()
}

func decodeReadTiming(d *decoder, path string, raw json.RawMessage) (ReadTiming, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return ReadTiming{}, err
	}
	var t ReadTiming
	field(o, "o", &t.Offset, decodeInt)
	field(o, "t", &t.Time, decodeFloat)
	return t, o.finish()
}
