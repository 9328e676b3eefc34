package measurement

import "encoding/json"

// OneOrMany accepts either a single value or a list of values and always holds a list.
type OneOrMany[T any] []T

func (m *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	v, err := oneOrMany(jsonValue[T])(lenient, "", data)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// SkipEmpty drops list entries that are the empty object {} and keeps the rest in order.
// Probes emit {} as a placeholder inside traceroute reply lists.
type SkipEmpty[T any] []T

func (s *SkipEmpty[T]) UnmarshalJSON(data []byte) error {
	v, err := skipEmpty(jsonValue[T])(lenient, "", data)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DigitBool is a boolean carried on the wire as the integer 0 or 1.
type DigitBool bool

func (b DigitBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (b *DigitBool) UnmarshalJSON(data []byte) error {
	v, err := decodeDigitBool(lenient, "", data)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func decodeDigitBool(d *decoder, path string, raw json.RawMessage) (DigitBool, error) {
	n, err := decodeInt(d, path, raw)
	if err != nil {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, newDecodeError(InvalidVariant, path, "%d is not 0 or 1", n)
	}
}

func oneOrMany[T any](fn decodeFunc[T]) decodeFunc[[]T] {
	many := sliceOf(fn)
	return func(d *decoder, path string, raw json.RawMessage) ([]T, error) {
		if kindOf(raw) != "array" {
			v, err := fn(d, path, raw)
			if err != nil {
				return nil, err
			}
			return []T{v}, nil
		}
		out, err := many(d, path, raw)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, newDecodeError(TypeMismatch, path, "expected at least one value")
		}
		return out, nil
	}
}

// skipEmpty keeps the original list index in error paths so they point into the raw record.
func skipEmpty[T any](fn decodeFunc[T]) decodeFunc[[]T] {
	return func(d *decoder, path string, raw json.RawMessage) ([]T, error) {
		items, err := arrayItems(path, raw)
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, len(items))
		for i, item := range items {
			if isEmptyObject(item) {
				continue
			}
			v, err := fn(d, indexPath(path, i), item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}
