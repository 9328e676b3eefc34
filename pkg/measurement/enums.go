package measurement

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// AddressFamily is the IP version a measurement ran over. On the wire it is the integer 4 or 6.
type AddressFamily uint8

const (
	IPv4 AddressFamily = 4
	IPv6 AddressFamily = 6
)

func (af AddressFamily) String() string {
	switch af {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return "AddressFamily(" + strconv.Itoa(int(af)) + ")"
	}
}

func (af AddressFamily) MarshalJSON() ([]byte, error) {
	if af != IPv4 && af != IPv6 {
		return nil, fmt.Errorf("encode address family: %d is not 4 or 6", uint8(af))
	}
	return []byte(strconv.Itoa(int(af))), nil
}

func (af *AddressFamily) UnmarshalJSON(data []byte) error {
	v, err := decodeAddressFamily(lenient, "", data)
	if err != nil {
		return err
	}
	*af = v
	return nil
}

func decodeAddressFamily(d *decoder, path string, raw json.RawMessage) (AddressFamily, error) {
	n, err := decodeInt(d, path, raw)
	if err != nil {
		return 0, err
	}
	switch n {
	case 4:
		return IPv4, nil
	case 6:
		return IPv6, nil
	default:
		return 0, newDecodeError(InvalidVariant, path, "address family %d is not 4 or 6", n)
	}
}

// Protocol is the transport a measurement used.
type Protocol string

const (
	ProtocolUDP  Protocol = "UDP"
	ProtocolTCP  Protocol = "TCP"
	ProtocolICMP Protocol = "ICMP"
)

var protocols = []Protocol{ProtocolUDP, ProtocolTCP, ProtocolICMP}

// ParseProtocol maps the wire text to a Protocol. Matching is case sensitive.
func ParseProtocol(s string) (Protocol, error) { return parseEnum(s, protocols) }

func (p Protocol) String() string                { return string(p) }
func (p Protocol) MarshalText() ([]byte, error)  { return marshalEnum(p, protocols) }
func (p *Protocol) UnmarshalText(b []byte) error { return unmarshalEnum(b, p, protocols) }

// HTTPMethod is the method reported in an HTTP result.
type HTTPMethod string

const (
	MethodGET  HTTPMethod = "GET"
	MethodHEAD HTTPMethod = "HEAD"
	MethodPOST HTTPMethod = "POST"
)

var httpMethods = []HTTPMethod{MethodGET, MethodHEAD, MethodPOST}

func ParseHTTPMethod(s string) (HTTPMethod, error) { return parseEnum(s, httpMethods) }

func (m HTTPMethod) String() string                { return string(m) }
func (m HTTPMethod) MarshalText() ([]byte, error)  { return marshalEnum(m, httpMethods) }
func (m *HTTPMethod) UnmarshalText(b []byte) error { return unmarshalEnum(b, m, httpMethods) }

// RequestHTTPMethod is the method accepted when requesting an HTTP measurement. It is a
// superset of HTTPMethod and kept distinct from it.
type RequestHTTPMethod string

const (
	RequestGET  RequestHTTPMethod = "GET"
	RequestHEAD RequestHTTPMethod = "HEAD"
	RequestPOST RequestHTTPMethod = "POST"
	RequestPUT  RequestHTTPMethod = "PUT"
)

var requestHTTPMethods = []RequestHTTPMethod{RequestGET, RequestHEAD, RequestPOST, RequestPUT}

func ParseRequestHTTPMethod(s string) (RequestHTTPMethod, error) {
	return parseEnum(s, requestHTTPMethods)
}

func (m RequestHTTPMethod) String() string               { return string(m) }
func (m RequestHTTPMethod) MarshalText() ([]byte, error) { return marshalEnum(m, requestHTTPMethods) }
func (m *RequestHTTPMethod) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, m, requestHTTPMethods)
}

// LeapIndicator warns of an impending NTP leap second.
type LeapIndicator string

const (
	LeapNone    LeapIndicator = "no"
	LeapAdd     LeapIndicator = "61"
	LeapDelete  LeapIndicator = "59"
	LeapUnknown LeapIndicator = "unknown"
)

var leapIndicators = []LeapIndicator{LeapNone, LeapDelete, LeapAdd, LeapUnknown}

func ParseLeapIndicator(s string) (LeapIndicator, error) { return parseEnum(s, leapIndicators) }

func (l LeapIndicator) String() string                { return string(l) }
func (l LeapIndicator) MarshalText() ([]byte, error)  { return marshalEnum(l, leapIndicators) }
func (l *LeapIndicator) UnmarshalText(b []byte) error { return unmarshalEnum(b, l, leapIndicators) }

// TLSMethod is the protocol family negotiated by an sslcert measurement.
type TLSMethod string

const (
	MethodSSL TLSMethod = "SSL"
	MethodTLS TLSMethod = "TLS"
)

var tlsMethods = []TLSMethod{MethodSSL, MethodTLS}

func ParseTLSMethod(s string) (TLSMethod, error) { return parseEnum(s, tlsMethods) }

func (m TLSMethod) String() string                { return string(m) }
func (m TLSMethod) MarshalText() ([]byte, error)  { return marshalEnum(m, tlsMethods) }
func (m *TLSMethod) UnmarshalText(b []byte) error { return unmarshalEnum(b, m, tlsMethods) }

// ICMPError is the letter code a traceroute reply carries when the ICMP response was an error.
type ICMPError string

const (
	ICMPNetworkUnreachable  ICMPError = "N"
	ICMPHostUnreachable     ICMPError = "H"
	ICMPAdminProhibited     ICMPError = "A"
	ICMPProtocolUnreachable ICMPError = "P"
	ICMPPortUnreachable     ICMPError = "p"
)

var icmpErrors = []ICMPError{
	ICMPNetworkUnreachable,
	ICMPHostUnreachable,
	ICMPAdminProhibited,
	ICMPProtocolUnreachable,
	ICMPPortUnreachable,
}

func ParseICMPError(s string) (ICMPError, error) { return parseEnum(s, icmpErrors) }

func (e ICMPError) String() string                { return string(e) }
func (e ICMPError) MarshalText() ([]byte, error)  { return marshalEnum(e, icmpErrors) }
func (e *ICMPError) UnmarshalText(b []byte) error { return unmarshalEnum(b, e, icmpErrors) }

// MeasurementType names the kind of measurement that produced a record.
type MeasurementType string

const (
	TypePing       MeasurementType = "ping"
	TypeTraceroute MeasurementType = "traceroute"
	TypeDNS        MeasurementType = "dns"
	TypeTLS        MeasurementType = "sslcert"
	TypeHTTP       MeasurementType = "http"
	TypeNTP        MeasurementType = "ntp"
	TypeWiFi       MeasurementType = "wifi"
)

var measurementTypes = []MeasurementType{TypePing, TypeTraceroute, TypeDNS, TypeTLS, TypeHTTP, TypeNTP, TypeWiFi}

// MeasurementTypes lists every known measurement type in a stable order.
func MeasurementTypes() []MeasurementType {
	return slices.Clone(measurementTypes)
}

func ParseMeasurementType(s string) (MeasurementType, error) { return parseEnum(s, measurementTypes) }

func (t MeasurementType) String() string               { return string(t) }
func (t MeasurementType) MarshalText() ([]byte, error) { return marshalEnum(t, measurementTypes) }
func (t *MeasurementType) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, t, measurementTypes)
}

// Stratum is an NTP server's distance from a reference clock, or the "invalid" marker.
type Stratum struct {
	invalid  bool
	distance int64
}

// StratumInvalid is the wire value "invalid".
var StratumInvalid = Stratum{invalid: true}

// StratumDistance builds a numeric stratum.
func StratumDistance(n int64) Stratum {
	return Stratum{distance: n}
}

// Distance returns the numeric stratum and false when the value is "invalid".
func (s Stratum) Distance() (int64, bool) {
	return s.distance, !s.invalid
}

func (s Stratum) String() string {
	if s.invalid {
		return "invalid"
	}
	return strconv.FormatInt(s.distance, 10)
}

func (s Stratum) MarshalJSON() ([]byte, error) {
	if s.invalid {
		return []byte(`"invalid"`), nil
	}
	return []byte(strconv.FormatInt(s.distance, 10)), nil
}

func (s *Stratum) UnmarshalJSON(data []byte) error {
	v, err := decodeStratum(lenient, "", data)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// decodeStratum tries the string form first and falls back to an integer.
func decodeStratum(d *decoder, path string, raw json.RawMessage) (Stratum, error) {
	if kindOf(raw) == "string" {
		text, err := decodeString(d, path, raw)
		if err != nil {
			return Stratum{}, err
		}
		if text != "invalid" {
			return Stratum{}, newDecodeError(InvalidVariant, path, "stratum %q is not \"invalid\" or an integer", text)
		}
		return StratumInvalid, nil
	}
	n, err := decodeInt(d, path, raw)
	if err != nil {
		return Stratum{}, err
	}
	return StratumDistance(n), nil
}

// TraceError is the err field of a traceroute reply: an ICMP letter code or, when the
// ICMP type has no letter, its numeric code.
type TraceError struct {
	ICMP ICMPError
	Code *int64
}

func (e TraceError) String() string {
	if e.Code != nil {
		return strconv.FormatInt(*e.Code, 10)
	}
	return string(e.ICMP)
}

func (e TraceError) MarshalJSON() ([]byte, error) {
	if e.Code != nil {
		return []byte(strconv.FormatInt(*e.Code, 10)), nil
	}
	return json.Marshal(e.ICMP)
}

func (e *TraceError) UnmarshalJSON(data []byte) error {
	v, err := decodeTraceError(lenient, "", data)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func decodeTraceError(d *decoder, path string, raw json.RawMessage) (TraceError, error) {
	switch kindOf(raw) {
	case "number":
		n, err := decodeInt(d, path, raw)
		if err != nil {
			return TraceError{}, err
		}
		return TraceError{Code: &n}, nil
	case "string":
		code, err := enumFunc(icmpErrors)(d, path, raw)
		if err != nil {
			return TraceError{}, err
		}
		return TraceError{ICMP: code}, nil
	default:
		return TraceError{}, mismatch(path, "ICMP error letter or integer", raw)
	}
}

func parseEnum[E ~string](s string, allowed []E) (E, error) {
	for _, v := range allowed {
		if string(v) == s {
			return v, nil
		}
	}
	return "", newDecodeError(InvalidVariant, "", "%q is not one of %v", s, allowed)
}

func marshalEnum[E ~string](v E, allowed []E) ([]byte, error) {
	if !slices.Contains(allowed, v) {
		return nil, fmt.Errorf("encode %T: %q is not one of %v", v, string(v), allowed)
	}
	return []byte(v), nil
}

func unmarshalEnum[E ~string](b []byte, dst *E, allowed []E) error {
	v, err := parseEnum(string(b), allowed)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func enumFunc[E ~string](allowed []E) decodeFunc[E] {
	return func(d *decoder, path string, raw json.RawMessage) (E, error) {
		s, err := decodeString(d, path, raw)
		if err != nil {
			return "", err
		}
		v, err := parseEnum(s, allowed)
		if err != nil {
			return "", newDecodeError(InvalidVariant, path, "%q is not one of %v", s, allowed)
		}
		return v, nil
	}
}

var (
	decodeProtocol        = enumFunc(protocols)
	decodeHTTPMethod      = enumFunc(httpMethods)
	decodeLeapIndicator   = enumFunc(leapIndicators)
	decodeTLSMethod       = enumFunc(tlsMethods)
	decodeMeasurementType = enumFunc(measurementTypes)
)
