package measurement

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

type decodeFunc[T any] func(d *decoder, path string, raw json.RawMessage) (T, error)

// object reads the fields of one JSON object. The first failure sticks; later field
// reads become no-ops and finish reports it.
type object struct {
	d      *decoder
	path   string
	fields map[string]json.RawMessage
	seen   map[string]bool
	err    error
}

func (d *decoder) object(path string, raw json.RawMessage) (*object, error) {
	if !json.Valid(raw) {
		return nil, invalidJSON(path, raw)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, mismatch(path, "object", raw)
	}
	return &object{
		d:      d,
		path:   path,
		fields: fields,
		seen:   make(map[string]bool, len(fields)),
	}, nil
}

func (o *object) has(name string) bool {
	_, ok := o.fields[name]
	return ok
}

// known marks keys as part of the schema without decoding them.
func (o *object) known(names ...string) {
	for _, name := range names {
		if _, ok := o.fields[name]; ok {
			o.seen[name] = true
		}
	}
}

func (o *object) fail(err error) {
	if o.err == nil {
		o.err = err
	}
}

func (o *object) finish() error {
	if o.err != nil {
		return o.err
	}
	if !o.d.strict {
		return nil
	}
	var extra []string
	for name := range o.fields {
		if !o.seen[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return newDecodeError(UnexpectedField, joinPath(o.path, extra[0]), "field(s) not in schema: %s", strings.Join(extra, ", "))
}

// field decodes a required key into dst.
func field[T any](o *object, name string, dst *T, fn decodeFunc[T]) {
	if o.err != nil {
		return
	}
	path := joinPath(o.path, name)
	raw, ok := o.fields[name]
	if !ok {
		o.fail(newDecodeError(MissingField, path, "required field is absent"))
		return
	}
	o.seen[name] = true
	if isNull(raw) {
		o.fail(newDecodeError(TypeMismatch, path, "required field is null"))
		return
	}
	v, err := fn(o.d, path, raw)
	if err != nil {
		o.fail(err)
		return
	}
	*dst = v
}

// optField decodes an optional key. Absent and null both leave dst nil.
func optField[T any](o *object, name string, dst **T, fn decodeFunc[T]) {
	if o.err != nil {
		return
	}
	raw, ok := o.fields[name]
	if !ok {
		return
	}
	o.seen[name] = true
	if isNull(raw) {
		return
	}
	v, err := fn(o.d, joinPath(o.path, name), raw)
	if err != nil {
		o.fail(err)
		return
	}
	*dst = &v
}

// optSlice is optField for slices, where nil already means absent.
func optSlice[T any](o *object, name string, dst *[]T, fn decodeFunc[[]T]) {
	var v *[]T
	optField(o, name, &v, fn)
	if v != nil {
		*dst = *v
	}
}

func sliceOf[T any](fn decodeFunc[T]) decodeFunc[[]T] {
	return func(d *decoder, path string, raw json.RawMessage) ([]T, error) {
		items, err := arrayItems(path, raw)
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, len(items))
		for i, item := range items {
			v, err := fn(d, indexPath(path, i), item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func decodeString(_ *decoder, path string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || isNull(raw) {
		return "", mismatch(path, "string", raw)
	}
	return s, nil
}

func decodeInt(_ *decoder, path string, raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil || isNull(raw) {
		return 0, mismatch(path, "integer", raw)
	}
	return n, nil
}

func decodeUint32(_ *decoder, path string, raw json.RawMessage) (uint32, error) {
	var n uint32
	if err := json.Unmarshal(raw, &n); err != nil || isNull(raw) {
		return 0, mismatch(path, "unsigned integer", raw)
	}
	return n, nil
}

func decodeFloat(_ *decoder, path string, raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || isNull(raw) {
		return 0, mismatch(path, "number", raw)
	}
	return f, nil
}

// decodePort accepts the port as a string or, from some firmware, a bare integer.
func decodePort(d *decoder, path string, raw json.RawMessage) (string, error) {
	if kindOf(raw) == "number" {
		n, err := decodeInt(d, path, raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	}
	return decodeString(d, path, raw)
}

// UnixTime is a wall-clock instant carried on the wire as integer unix seconds.
type UnixTime struct {
	time.Time
}

// Unix builds a UnixTime from seconds since the epoch.
func Unix(sec int64) UnixTime {
	return UnixTime{Time: time.Unix(sec, 0).UTC()}
}

func (t UnixTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.Unix(), 10)), nil
}

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	v, err := decodeUnixTime(lenient, "", data)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func decodeUnixTime(d *decoder, path string, raw json.RawMessage) (UnixTime, error) {
	sec, err := decodeInt(d, path, raw)
	if err != nil {
		return UnixTime{}, err
	}
	return Unix(sec), nil
}

// jsonValue decodes with encoding/json directly; used for element types that carry
// no special rules.
func jsonValue[T any](_ *decoder, path string, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &DecodeError{Kind: TypeMismatch, Path: path, Detail: "cannot decode " + kindOf(raw), cause: err}
	}
	return v, nil
}

func arrayItems(path string, raw json.RawMessage) ([]json.RawMessage, error) {
	if !json.Valid(raw) {
		return nil, invalidJSON(path, raw)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, mismatch(path, "array", raw)
	}
	return items, nil
}

// invalidJSON reports input that is not JSON at all, such as a record cut off
// mid-write. It is kept apart from TypeMismatch, which means valid JSON of the
// wrong shape.
func invalidJSON(path string, raw json.RawMessage) *DecodeError {
	var v any
	return &DecodeError{Kind: MalformedRecord, Path: path, Detail: "invalid JSON", cause: json.Unmarshal(raw, &v)}
}

func mismatch(path, want string, raw json.RawMessage) *DecodeError {
	return newDecodeError(TypeMismatch, path, "expected %s, got %s", want, kindOf(raw))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isEmptyObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	if len(t) < 2 || t[0] != '{' || t[len(t)-1] != '}' {
		return false
	}
	return len(bytes.TrimSpace(t[1:len(t)-1])) == 0
}

func kindOf(raw json.RawMessage) string {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return "nothing"
	}
	switch t[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "bool"
	case 'n':
		return "null"
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return "number"
	default:
		return "invalid"
	}
}
