package measurement

// Option configures a decode call.
type Option func(*decoder)

// WithStrict makes unknown fields fail with UnexpectedField instead of being ignored.
func WithStrict(strict bool) Option {
	return func(d *decoder) {
		d.strict = strict
	}
}

type decoder struct {
	strict bool
}

func newDecoder(opts []Option) *decoder {
	d := &decoder{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Strict reports whether the options enable strict mode.
func Strict(opts ...Option) bool {
	return newDecoder(opts).strict
}

// lenient backs the standalone json.Unmarshaler implementations.
var lenient = &decoder{}
