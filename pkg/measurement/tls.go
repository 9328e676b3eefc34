package measurement

import (
	"encoding/json"
	"errors"
)

// ErrAlertWithCertificate reports a TLS result that carries both an alert and a certificate chain.
var ErrAlertWithCertificate = errors.New("tls result has both alert and cert")

// TLS is the payload of an sslcert result.
type TLS struct {
	AF           *AddressFamily `json:"af,omitempty"`
	Alert        *TLSAlert      `json:"alert,omitempty"`
	Certificates []string       `json:"cert,omitempty"`
	DstAddr      *string        `json:"dst_addr,omitempty"`
	DstName      string         `json:"dst_name"`
	DstPort      string         `json:"dst_port"`
	Method       *TLSMethod     `json:"method,omitempty"`
	RT           *float64       `json:"rt,omitempty"`
	ServerCipher *string        `json:"server_cipher,omitempty"`
	TTC          *float64       `json:"ttc,omitempty"`
	Version      *string        `json:"ver,omitempty"`
	Err          *string        `json:"err,omitempty"`
	Error        *string        `json:"error,omitempty"`
	DNSErr       *string        `json:"dnserr,omitempty"`
}

// TLSAlert is the alert sent by the server instead of a certificate.
type TLSAlert struct {
	Level       int64 `json:"level"`
	Description int64 `json:"description"`
}

// Validate reports an error when the result carries both an alert and certificates.
// Decoding never checks this.
func (t *TLS) Validate() error {
	if t.Alert != nil && len(t.Certificates) > 0 {
		return ErrAlertWithCertificate
	}
	return nil
}

func (t *TLS) decodeFields(o *object) {
	optField(o, "af", &t.AF, decodeAddressFamily)
	optField(o, "alert", &t.Alert, decodeTLSAlert)
	optSlice(o, "cert", &t.Certificates, sliceOf(decodeString))
	optField(o, "dst_addr", &t.DstAddr, decodeString)
	field(o, "dst_name", &t.DstName, decodeString)
	field(o, "dst_port", &t.DstPort, decodePort)
	optField(o, "method", &t.Method, decodeTLSMethod)
	optField(o, "rt", &t.RT, decodeFloat)
	optField(o, "server_cipher", &t.ServerCipher, decodeString)
	optField(o, "ttc", &t.TTC, decodeFloat)
	optField(o, "ver", &t.Version, decodeString)
	optField(o, "err", &t.Err, decodeString)
	optField(o, "error", &t.Error, decodeString)
	optField(o, "dnserr", &t.DNSErr, decodeString)
}

func decodeTLSAlert(d *decoder, path string, raw json.RawMessage) (TLSAlert, error) {
	o, err := d.object(path, raw)
	if err != nil {
		return TLSAlert{}, err
	}
	var a TLSAlert
	field(o, "level", &a.Level, decodeInt)
	field(o, "description", &a.Description, decodeInt)
	return a, o.finish()
}
