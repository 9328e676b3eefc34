package metrics

// DecodeRecorder observes the outcome of decoding one record.
type DecodeRecorder interface {
	ObserveRecord(kind string)
	ObserveDecoded(kind string)
	ObserveFailure(kind, errKind string)
}

type NoopDecodeRecorder struct{}

func (NoopDecodeRecorder) ObserveRecord(kind string)           {}
func (NoopDecodeRecorder) ObserveDecoded(kind string)          {}
func (NoopDecodeRecorder) ObserveFailure(kind, errKind string) {}

// SpillRecorder observes the on-disk failure spill.
type SpillRecorder interface {
	ObservePendingBytes(bytes int64)
	IncSpillEvictions()
}

type NoopSpillRecorder struct{}

func (NoopSpillRecorder) ObservePendingBytes(bytes int64) {}
func (NoopSpillRecorder) IncSpillEvictions()              {}
