package measurement

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// ErrNoAnswerBuffer is returned by DNSResponse.Message when the probe did not include abuf.
var ErrNoAnswerBuffer = errors.New("dns response has no abuf")

// DNS is the payload of a DNS result. A single-target measurement fills Response or
// Error; a measurement against every resolver of the probe fills ResultSet instead.
type DNS struct {
	AF        *AddressFamily      `json:"af,omitempty"`
	DstAddr   *string             `json:"dst_addr,omitempty"`
	DstName   *string             `json:"dst_name,omitempty"`
	DstPort   *string             `json:"dst_port,omitempty"`
	Error     *DNSLookupError     `json:"error,omitempty"`
	Proto     *Protocol           `json:"proto,omitempty"`
	QueryBuf  *string             `json:"qbuf,omitempty"`
	Response  *DNSResponse        `json:"result,omitempty"`
	ResultSet []DNSResultSetEntry `json:"resultset,omitempty"`
	Retry     *int64              `json:"retry,omitempty"`
	SubID     *int64              `json:"subid,omitempty"`
	SubMax    *int64              `json:"submax,omitempty"`
	Name      *string             `json:"name,omitempty"`
}

// DNSResponse is the parsed header of one answer plus the base64 wire message.
type DNSResponse struct {
	AnswerCount     int64       `json:"ANCOUNT"`
	AdditionalCount int64       `json:"ARCOUNT"`
	ID              int64       `json:"ID"`
	AuthorityCount  int64       `json:"NSCOUNT"`
	QuestionCount   int64       `json:"QDCOUNT"`
	AnswerBuf       *string     `json:"abuf,omitempty"`
	Answers         []DNSRecord `json:"answers,omitempty"`
	RT              *float64    `json:"rt,omitempty"`
	Size            *int64      `json:"size,omitempty"`
	TTL             *int64      `json:"ttl,omitempty"`
	QueryTime       *float64    `json:"qt,omitempty"`
}

// Message unpacks abuf into a full DNS message.
func (r *DNSResponse) Message() (*dns.Msg, error) {
	if r.AnswerBuf == nil {
		return nil, ErrNoAnswerBuffer
	}
	wire, err := base64.StdEncoding.DecodeString(*r.AnswerBuf)
	if err != nil {
		return nil, fmt.Errorf("decode abuf: %w", err)
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(wire); err != nil {
		return nil, fmt.Errorf("unpack abuf: %w", err)
	}
	return msg, nil
}

// DNSRecordType is the TYPE tag of a parsed answer record.
type DNSRecordType string

const (
	RecordTXT DNSRecordType = "TXT"
	RecordSOA DNSRecordType = "SOA"
)

var dnsRecordTypes = []DNSRecordType{RecordTXT, RecordSOA}

// DNSRecord is an answer the probe parsed itself. Exactly one of TXT and SOA is set,
// matching Type.
type DNSRecord struct {
	Type DNSRecordType
	TXT  *TXTRecord
	SOA  *SOARecord
}

type TXTRecord struct {
	Name  string
	RData []string
}

type SOARecord struct {
	MName  string
	Name   string
	RName  string
	Serial int64
	TTL    int64
}

func (r DNSRecord) MarshalJSON() ([]byte, error) {
	switch {
	case r.Type == RecordTXT && r.TXT != nil:
		return json.Marshal(struct {
			Type  DNSRecordType `json:"TYPE"`
			Name  string        `json:"NAME"`
			RData []string      `json:"RDATA"`
		}{r.Type, r.TXT.Name, r.TXT.RData})
	case r.Type == RecordSOA && r.SOA != nil:
		return json.Marshal(struct {
			Type   DNSRecordType `json:"TYPE"`
			MName  string        `json:"MNAME"`
			Name   string        `json:"NAME"`
			RName  string        `json:"RNAME"`
			Serial int64         `json:"SERIAL"`
			TTL    int64         `json:"TTL"`
		}{r.Type, r.SOA.MName, r.SOA.Name, r.SOA.RName, r.SOA.Serial, r.SOA.TTL})
	default:
		return nil, fmt.Errorf("encode dns record: type %q without matching body", string(r.Type))
	}
}

// DNSLookupError is the error of a DNS result: either a timeout after the given number
// of milliseconds, or a map of error names to messages.
type DNSLookupError struct {
	Timeout  *int64
	Messages map[string]string
}

func (e DNSLookupError) MarshalJSON() ([]byte, error) {
	if e.Timeout != nil {
		return json.Marshal(map[string]int64{"timeout": *e.Timeout})
	}
	return json.Marshal(e.Messages)
}

// DNSResultSetEntry is one resolver's answer within a resultset.
type DNSResultSetEntry struct {
	Time     UnixTime        `json:"time"`
	LastSync *int64          `json:"lts,omitempty"`
	SubID    *int64          `json:"subid,omitempty"`
	SubMax   *int64          `json:"submax,omitempty"`
	DstAddr  *string         `json:"dst_addr,omitempty"`
	DstName  *string         `json:"dst_name,omitempty"`
	DstPort  *string         `json:"dst_port,omitempty"`
	AF       *AddressFamily  `json:"af,omitempty"`
	SrcAddr  *string         `json:"src_addr,omitempty"`
	Proto    *Protocol       `json:"proto,omitempty"`
	QueryBuf *string         `json:"qbuf,omitempty"`
	Response *DNSResponse    `json:"result,omitempty"`
	Error    *DNSLookupError `json:"error,omitempty"`
	Retry    *int64          `json:"retry,omitempty"`
}

func (p *DNS) decodeFields(o *object) {
	optField(o, "af", &p.AF, decodeAddressFamily)
	optField(o, "dst_addr", &p.DstAddr, decodeString)
	optField(o, "dst_name", &p.DstName, decodeString)
	optField(o, "dst_port", &p.DstPort, decodePort)
	optField(o, "error", &p.Error, decodeDNSLookupError)
	optField(o, "proto", &p.Proto, decodeProtocol)
	optField(o, "qbuf", &p.QueryBuf, decodeString)
	optField(o, "result", &p.Response, decodeDNSResponse)
	optSlice(o, "resultset", &p.ResultSet, sliceOf(decodeDNSResultSetEntry))
	optField(o, "retry", &p.Retry, decodeInt)
	optField(o, "subid", &p.SubID, decodeInt)
	optField(o, "submax", &p.SubMax, decodeInt)
	optField(o, "name", &p.Name, decodeString)
}

func decodeDNSResponse(d *decoder, path string, raw json.RawMessage) (DNSResponse, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return DNSResponse{}, err
	}
	var r DNSResponse
	field(o, "ANCOUNT", &r.AnswerCount, decodeInt)
	field(o, "ARCOUNT", &r.AdditionalCount, decodeInt)
	field(o, "ID", &r.ID, decodeInt)
	field(o, "NSCOUNT", &r.AuthorityCount, decodeInt)
	field(o, "QDCOUNT", &r.QuestionCount, decodeInt)
	optField(o, "abuf", &r.AnswerBuf, decodeString)
	optSlice(o, "answers", &r.Answers, sliceOf(decodeDNSRecord))
	optField(o, "rt", &r.RT, decodeFloat)
	optField(o, "size", &r.Size, decodeInt)
	optField(o, "ttl", &r.TTL, decodeInt)
	optField(o, "qt", &r.QueryTime, decodeFloat)
	return r, o.finish()
}

func decodeDNSRecord(d *decoder, path string, raw json.RawMessage) (DNSRecord, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return DNSRecord{}, err
	}
	var rec DNSRecord
	field(o, "TYPE", &rec.Type, enumFunc(dnsRecordTypes))
	if o.err != nil {
		return DNSRecord{}, o.err
	}
	switch rec.Type {
	case RecordTXT:
		txt := &TXTRecord{}
		field(o, "NAME", &txt.Name, decodeString)
		field(o, "RDATA", &txt.RData, oneOrMany(decodeString))
		rec.TXT = txt
	case RecordSOA:
		soa := &SOARecord{}
		field(o, "MNAME", &soa.MName, decodeString)
		field(o, "NAME", &soa.Name, decodeString)
		field(o, "RNAME", &soa.RName, decodeString)
		field(o, "SERIAL", &soa.Serial, decodeInt)
		field(o, "TTL", &soa.TTL, decodeInt)
		rec.SOA = soa
	}
	return rec, o.finish()
}

func decodeDNSLookupError(d *decoder, path string, raw json.RawMessage) (DNSLookupError, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return DNSLookupError{}, err
	}
	if v, ok := o.fields["timeout"]; ok && kindOf(v) == "number" {
		var e DNSLookupError
		optField(o, "timeout", &e.Timeout, decodeInt)
		return e, o.finish()
	}
	e := DNSLookupError{Messages: make(map[string]string, len(o.fields))}
	for name, v := range o.fields {
		msg, err := decodeString(d, joinPath(path, name), v)
		if err != nil {
			return DNSLookupError{}, err
		}
		e.Messages[name] = msg
	}
	return e, nil
}

func decodeDNSResultSetEntry(d *decoder, path string, raw json.RawMessage) (DNSResultSetEntry, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return DNSResultSetEntry{}, err
	}
	var e DNSResultSetEntry
	field(o, "time", &e.Time, decodeUnixTime)
	optField(o, "lts", &e.LastSync, decodeInt)
	optField(o, "subid", &e.SubID, decodeInt)
	optField(o, "submax", &e.SubMax, decodeInt)
	optField(o, "dst_addr", &e.DstAddr, decodeString)
	optField(o, "dst_name", &e.DstName, decodeString)
	optField(o, "dst_port", &e.DstPort, decodePort)
	optField(o, "af", &e.AF, decodeAddressFamily)
	optField(o, "src_addr", &e.SrcAddr, decodeString)
	optField(o, "proto", &e.Proto, decodeProtocol)
	optField(o, "qbuf", &e.QueryBuf, decodeString)
	optField(o, "result", &e.Response, decodeDNSResponse)
	optField(o, "error", &e.Error, decodeDNSLookupError)
	optField(o, "retry", &e.Retry, decodeInt)
	return e, o.finish()
}
