package measurement

import (
	"encoding/json"
	"errors"
)

// Metadata is shared by every result type. It is decoded from the same wire object as
// the payload.
type Metadata struct {
	Firmware        int64     `json:"fw"`
	From            string    `json:"from"`
	GroupID         *int64    `json:"group_id,omitempty"`
	LastSync        *int64    `json:"lts,omitempty"`
	MeasurementID   int64     `json:"msm_id"`
	MeasurementName string    `json:"msm_name"`
	ProbeID         int64     `json:"prb_id"`
	SrcAddr         *string   `json:"src_addr,omitempty"`
	Timestamp       UnixTime  `json:"timestamp"`
	Type            string    `json:"type"`
	FirmwareVersion *string   `json:"mver,omitempty"`
	Bundle          *int64    `json:"bundle,omitempty"`
	ResolveDuration *float64  `json:"ttr,omitempty"`
	StoredTimestamp *UnixTime `json:"stored_timestamp,omitempty"`
}

// Meta returns the metadata; it is promoted to every result type.
func (m *Metadata) Meta() *Metadata {
	return m
}

func (m *Metadata) decodeFields(o *object) {
	field(o, "fw", &m.Firmware, decodeInt)
	field(o, "from", &m.From, decodeString)
	optField(o, "group_id", &m.GroupID, decodeInt)
	optField(o, "lts", &m.LastSync, decodeInt)
	field(o, "msm_id", &m.MeasurementID, decodeInt)
	field(o, "msm_name", &m.MeasurementName, decodeString)
	field(o, "prb_id", &m.ProbeID, decodeInt)
	optField(o, "src_addr", &m.SrcAddr, decodeString)
	field(o, "timestamp", &m.Timestamp, decodeUnixTime)
	field(o, "type", &m.Type, decodeString)
	optField(o, "mver", &m.FirmwareVersion, decodeString)
	optField(o, "bundle", &m.Bundle, decodeInt)
	optField(o, "ttr", &m.ResolveDuration, decodeFloat)
	optField(o, "stored_timestamp", &m.StoredTimestamp, decodeUnixTime)
}

// Result is implemented by every decoded envelope.
type Result interface {
	Meta() *Metadata
	Kind() MeasurementType
}

// PingResult is a decoded ping record. Fields of both halves are promoted.
type PingResult struct {
	Metadata
	Ping
}

// TracerouteResult is a decoded traceroute record.
type TracerouteResult struct {
	Metadata
	Traceroute
}

// DNSResult is a decoded DNS record.
type DNSResult struct {
	Metadata
	DNS
}

// HTTPResult is a decoded HTTP record.
type HTTPResult struct {
	Metadata
	HTTP
}

// NTPResult is a decoded NTP record.
type NTPResult struct {
	Metadata
	NTP
}

// TLSResult is a decoded sslcert record.
type TLSResult struct {
	Metadata
	TLS
}

func (*PingResult) Kind() MeasurementType       { return TypePing }
func (*TracerouteResult) Kind() MeasurementType { return TypeTraceroute }
func (*DNSResult) Kind() MeasurementType        { return TypeDNS }
func (*HTTPResult) Kind() MeasurementType       { return TypeHTTP }
func (*NTPResult) Kind() MeasurementType        { return TypeNTP }
func (*TLSResult) Kind() MeasurementType        { return TypeTLS }

// DecodePing decodes one ping record.
func DecodePing(data []byte, opts ...Option) (*PingResult, error) {
	return decodeRecord(data, opts, func(o *object, r *PingResult) {
		r.Metadata.decodeFields(o)
		r.Ping.decodeFields(o)
	})
}

// DecodeTraceroute decodes one traceroute record, keeping hop and reply order.
func DecodeTraceroute(data []byte, opts ...Option) (*TracerouteResult, error) {
	return decodeRecord(data, opts, func(o *object, r *TracerouteResult) {
		r.Metadata.decodeFields(o)
		r.Traceroute.decodeFields(o)
	})
}

// DecodeDNS decodes one DNS record, either a single answer or a resultset.
func DecodeDNS(data []byte, opts ...Option) (*DNSResult, error) {
	return decodeRecord(data, opts, func(o *object, r *DNSResult) {
		r.Metadata.decodeFields(o)
		r.DNS.decodeFields(o)
	})
}

// DecodeHTTP decodes one HTTP record.
func DecodeHTTP(data []byte, opts ...Option) (*HTTPResult, error) {
	return decodeRecord(data, opts, func(o *object, r *HTTPResult) {
		r.Metadata.decodeFields(o)
		r.HTTP.decodeFields(o)
	})
}

// DecodeNTP decodes one NTP record.
func DecodeNTP(data []byte, opts ...Option) (*NTPResult, error) {
	return decodeRecord(data, opts, func(o *object, r *NTPResult) {
		r.Metadata.decodeFields(o)
		r.NTP.decodeFields(o)
	})
}

// DecodeTLS decodes one sslcert record.
func DecodeTLS(data []byte, opts ...Option) (*TLSResult, error) {
	return decodeRecord(data, opts, func(o *object, r *TLSResult) {
		r.Metadata.decodeFields(o)
		r.TLS.decodeFields(o)
	})
}

// The UnmarshalJSON methods let the result types sit inside larger documents. They
// decode leniently, the same as the package-level functions with no options.

func (r *PingResult) UnmarshalJSON(data []byte) error {
	v, err := DecodePing(data)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

func (r *TracerouteResult) UnmarshalJSON(data []byte) error {
	v, err := DecodeTraceroute(data)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

func (r *DNSResult) UnmarshalJSON(data []byte) error {
	v, err := DecodeDNS(data)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

func (r *HTTPResult) UnmarshalJSON(data []byte) error {
	v, err := DecodeHTTP(data)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

func (r *NTPResult) UnmarshalJSON(data []byte) error {
	v, err := DecodeNTP(data)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

func (r *TLSResult) UnmarshalJSON(data []byte) error {
	v, err := DecodeTLS(data)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

// Decode picks the decoder from the record's type field. Wifi records are recognised but
// have no decoder and fail with InvalidVariant.
func Decode(data []byte, opts ...Option) (Result, error) {
	kind, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	return DecodeAs(kind, data, opts...)
}

// DecodeAs decodes data with the decoder for kind, whatever its type field says.
func DecodeAs(kind MeasurementType, data []byte, opts ...Option) (Result, error) {
	switch kind {
	case TypePing:
		return asResult(DecodePing(data, opts...))
	case TypeTraceroute:
		return asResult(DecodeTraceroute(data, opts...))
	case TypeDNS:
		return asResult(DecodeDNS(data, opts...))
	case TypeHTTP:
		return asResult(DecodeHTTP(data, opts...))
	case TypeNTP:
		return asResult(DecodeNTP(data, opts...))
	case TypeTLS:
		return asResult(DecodeTLS(data, opts...))
	default:
		return nil, withRecord(newDecodeError(InvalidVariant, "type", "no decoder for %q records", string(kind)), data)
	}
}

// asResult keeps a failed decode from becoming a non-nil Result holding a nil pointer.
func asResult[R Result](r R, err error) (Result, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

// PeekType reads only the type field of a record.
func PeekType(data []byte) (MeasurementType, error) {
	o, err := lenient.object("", data)
	if err != nil {
		return "", withRecord(err, data)
	}
	var kind MeasurementType
	field(o, "type", &kind, decodeMeasurementType)
	if o.err != nil {
		return "", withRecord(o.err, data)
	}
	return kind, nil
}

func decodeRecord[R any](data []byte, opts []Option, fill func(o *object, r *R)) (*R, error) {
	d := newDecoder(opts)
	o, err := d.object("", json.RawMessage(data))
	if err != nil {
		return nil, withRecord(err, data)
	}
	r := new(R)
	fill(o, r)
	if err := o.finish(); err != nil {
		return nil, withRecord(err, data)
	}
	return r, nil
}

func withRecord(err error, data []byte) error {
	var de *DecodeError
	if errors.As(err, &de) && de.Record == "" {
		de.Record = string(data)
	}
	return err
}
