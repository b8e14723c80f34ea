package primitives

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// stat accumulates count/sum/sum-of-squares/max elapsed-time fields
// alongside an OTel histogram instrument. OTel's histogram buckets do
// not expose sum-of-squares or a raw max, so both are kept: the
// histogram for export, this struct for the summary surfaced through
// primitives/describe.
type stat struct {
	mu    sync.Mutex
	count int64
	sum   float64
	sumSq float64
	max   float64
	histo metric.Float64Histogram
	attrs metric.RecordOption
}

func newStat(histo metric.Float64Histogram, primitive string) *stat {
	return &stat{
		histo: histo,
		attrs: metric.WithAttributes(attribute.String("primitive", primitive)),
	}
}

// record adds one elapsed-time sample, in seconds.
func (s *stat) record(ctx context.Context, elapsedSeconds float64) {
	s.mu.Lock()
	s.count++
	s.sum += elapsedSeconds
	s.sumSq += elapsedSeconds * elapsedSeconds
	if elapsedSeconds > s.max {
		s.max = elapsedSeconds
	}
	s.mu.Unlock()

	if s.histo != nil {
		s.histo.Record(ctx, elapsedSeconds, s.attrs)
	}
}

// Snapshot is the point-in-time view of a primitive's statistics.
type Snapshot struct {
	Count      int64   `json:"count"`
	Sum        float64 `json:"sum"`
	SumSquares float64 `json:"sum_squares"`
	Max        float64 `json:"max"`
}

func (s *stat) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Count: s.count, Sum: s.sum, SumSquares: s.sumSq, Max: s.max}
}
