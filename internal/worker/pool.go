// Package worker decodes corpus records on a fixed number of goroutines.
package worker

import (
	"context"
	"runtime"
	"sync"

	"github.com/pingsantohq/atlasdecode/internal/corpus"
	"github.com/pingsantohq/atlasdecode/pkg/measurement"
)

// Result is the outcome of decoding one record. Type is best effort when Err is set.
type Result struct {
	Record corpus.Record
	Type   measurement.MeasurementType
	Value  measurement.Result
	Err    error
}

type ResultSink interface {
	Enqueue(ctx context.Context, res Result) bool
}

// ChanSink forwards results to a channel, giving up when ctx is done.
type ChanSink chan<- Result

func (c ChanSink) Enqueue(ctx context.Context, res Result) bool {
	select {
	case c <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

// Decoder matches measurement.Decode.
type Decoder func(data []byte, opts ...measurement.Option) (measurement.Result, error)

type validator interface {
	Validate() error
}

type Pool struct {
	jobs            <-chan corpus.Record
	results         ResultSink
	workerCount     int
	decode          Decoder
	decodeOpts      []measurement.Option
	checkInvariants bool
}

type PoolOption func(*Pool)

func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

func WithDecoder(fn Decoder) PoolOption {
	return func(p *Pool) {
		if fn != nil {
			p.decode = fn
		}
	}
}

func WithDecodeOptions(opts ...measurement.Option) PoolOption {
	return func(p *Pool) {
		p.decodeOpts = append(p.decodeOpts, opts...)
	}
}

// WithInvariantChecks runs Validate on decoded values that have one.
func WithInvariantChecks(enabled bool) PoolOption {
	return func(p *Pool) {
		p.checkInvariants = enabled
	}
}

func NewPool(jobs <-chan corpus.Record, results ResultSink, opts ...PoolOption) *Pool {
	p := &Pool{
		jobs:        jobs,
		results:     results,
		workerCount: runtime.NumCPU(),
		decode:      measurement.Decode,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start launches the workers. They exit when jobs is closed or ctx is done.
func (p *Pool) Start(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx)
		}()
	}
	return &wg
}

func (p *Pool) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-p.jobs:
			if !ok {
				return
			}
			if !p.results.Enqueue(ctx, p.handle(rec)) {
				return
			}
		}
	}
}

func (p *Pool) handle(rec corpus.Record) Result {
	res := Result{Record: rec}
	value, err := p.decode(rec.Raw, p.decodeOpts...)
	if err != nil {
		res.Err = err
		res.Type, _ = measurement.PeekType(rec.Raw)
		return res
	}
	res.Value = value
	res.Type = value.Kind()
	if v, ok := value.(validator); ok && p.checkInvariants {
		res.Err = v.Validate()
	}
	return res
}
