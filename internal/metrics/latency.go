package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// DefaultReservoirSize is the number of samples kept per adapter for
// percentile estimation.
const DefaultReservoirSize = 1024

// Operation duration bucket bounds in milliseconds.
var latencyBounds = []float64{1_000, 5_000, 15_000, 60_000}

var latencyLabels = []string{"0-1s", "1-5s", "5-15s", "15-60s", "60s+"}

// StreamingLatencyStats estimates duration percentiles with reservoir
// sampling (Algorithm R) in bounded memory.
type StreamingLatencyStats struct {
	mu sync.RWMutex

	count int64
	sum   float64
	min   float64
	max   float64

	reservoir     []float64
	reservoirSize int
	buckets       []int64

	// xorshift64* state, per instance.
	randState uint64
}

// NewStreamingLatencyStats creates an empty calculator.
func NewStreamingLatencyStats() *StreamingLatencyStats {
	return newStreamingLatencyStats(DefaultReservoirSize)
}

func newStreamingLatencyStats(size int) *StreamingLatencyStats {
	return &StreamingLatencyStats{
		min:           math.MaxFloat64,
		reservoir:     make([]float64, 0, size),
		reservoirSize: size,
		buckets:       make([]int64, len(latencyLabels)),
		randState:     1,
	}
}

// Add records a sample in milliseconds.
func (s *StreamingLatencyStats) Add(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += ms
	s.min = math.Min(s.min, ms)
	s.max = math.Max(s.max, ms)
	s.buckets[bucketIndex(ms)]++

	if len(s.reservoir) < s.reservoirSize {
		s.reservoir = append(s.reservoir, ms)
		return
	}
	if j := s.fastRand() % uint64(s.count); j < uint64(s.reservoirSize) {
		s.reservoir[j] = ms
	}
}

func bucketIndex(ms float64) int {
	for i, bound := range latencyBounds {
		if ms < bound {
			return i
		}
	}
	return len(latencyBounds)
}

func (s *StreamingLatencyStats) fastRand() uint64 {
	s.randState ^= s.randState >> 12
	s.randState ^= s.randState << 25
	s.randState ^= s.randState >> 27
	return s.randState * 0x2545F4914F6CDD1D
}

// Stats returns the current statistics, or nil before the first sample.
func (s *StreamingLatencyStats) Stats() *types.LatencyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	sort.Float64s(sorted)

	stats := &types.LatencyStats{
		Count: int(s.count),
		Min:   s.min,
		Max:   s.max,
		Avg:   s.sum / float64(s.count),
		P50:   percentile(sorted, 0.50),
		P90:   percentile(sorted, 0.90),
		P99:   percentile(sorted, 0.99),
	}
	for i, label := range latencyLabels {
		stats.Buckets = append(stats.Buckets, types.LatencyBucket{Label: label, Count: int(s.buckets[i])})
	}
	return stats
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	idx := p * float64(len(sorted)-1)
	lower := int(idx)
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}

// OperationLatency keeps StreamingLatencyStats per adapter. It is a
// StatusReporter fed by ObserveOperation.
type OperationLatency struct {
	report.Nop

	mu    sync.RWMutex
	stats map[string]*StreamingLatencyStats
}

// NewOperationLatency creates an empty tracker.
func NewOperationLatency() *OperationLatency {
	return &OperationLatency{stats: make(map[string]*StreamingLatencyStats)}
}

// ObserveOperation records the event's duration under its adapter.
func (l *OperationLatency) ObserveOperation(ev types.OperationEvent) {
	l.mu.Lock()
	s, ok := l.stats[ev.Adapter]
	if !ok {
		s = NewStreamingLatencyStats()
		l.stats[ev.Adapter] = s
	}
	l.mu.Unlock()

	s.Add(float64(ev.Duration.Microseconds()) / 1000)
}

// Snapshot returns the statistics of every adapter seen so far.
func (l *OperationLatency) Snapshot() map[string]*types.LatencyStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]*types.LatencyStats, len(l.stats))
	for name, s := range l.stats {
		out[name] = s.Stats()
	}
	return out
}
