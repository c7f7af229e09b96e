package transport

import (
	"sync"

	"github.com/gateway-fm/cyclebot/internal/report"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

const (
	maxRecentEvents = 50
	maxLogLines     = 100
)

// LatencySource provides per-adapter operation latency statistics.
type LatencySource interface {
	Snapshot() map[string]*types.LatencyStats
}

// Hub is a StatusReporter that keeps the latest aggregate Status for the
// HTTP, WebSocket and MCP surfaces.
type Hub struct {
	mu      sync.RWMutex
	status  types.Status
	recent  []types.OperationEvent
	logs    []string
	latency LatencySource
	version uint64
}

var _ report.StatusReporter = (*Hub)(nil)

// NewHub creates a hub for network. latency may be nil.
func NewHub(network string, latency LatencySource) *Hub {
	return &Hub{
		status:  types.Status{State: types.StateIdle, Network: network},
		latency: latency,
	}
}

// Status returns a copy of the current status.
func (h *Hub) Status() types.Status {
	h.mu.RLock()
	s := h.status
	s.Table = append([]types.StatusRow(nil), h.status.Table...)
	s.Recent = append([]types.OperationEvent(nil), h.recent...)
	s.Logs = append([]string(nil), h.logs...)
	if h.status.Snapshot != nil {
		snap := *h.status.Snapshot
		s.Snapshot = &snap
	}
	h.mu.RUnlock()

	if h.latency != nil {
		s.Latency = h.latency.Snapshot()
	}
	return s
}

// History returns the transaction history of the latest balance snapshot.
func (h *Hub) History() []types.TransactionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.status.Snapshot == nil {
		return []types.TransactionRecord{}
	}
	return append([]types.TransactionRecord{}, h.status.Snapshot.History...)
}

// Version increases with every update.
func (h *Hub) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

func (h *Hub) update(fn func(s *types.Status)) {
	h.mu.Lock()
	fn(&h.status)
	h.version++
	h.mu.Unlock()
}

func (h *Hub) Log(msg string) {
	h.update(func(*types.Status) {
		h.logs = append(h.logs, msg)
		if len(h.logs) > maxLogLines {
			h.logs = h.logs[len(h.logs)-maxLogLines:]
		}
	})
}

func (h *Hub) UpdateTable(rows []types.StatusRow) {
	h.update(func(s *types.Status) { s.Table = rows })
}

func (h *Hub) UpdateStatus(state types.RunState) {
	h.update(func(s *types.Status) { s.State = state })
}

func (h *Hub) UpdateProgress(cycle types.CycleState, percent float64) {
	h.update(func(s *types.Status) {
		s.Cycle = cycle.Index + 1
		s.Total = cycle.Total
		s.Progress = percent
	})
}

// UpdateWallet resets the per-wallet fields.
func (h *Hub) UpdateWallet(wallet string) {
	h.update(func(s *types.Status) {
		s.Wallet = wallet
		s.Cycle = 0
		s.Progress = 0
		s.Table = nil
		s.Snapshot = nil
	})
}

func (h *Hub) UpdateSnapshot(snap types.Snapshot) {
	h.update(func(s *types.Status) { s.Snapshot = &snap })
}

func (h *Hub) ObserveOperation(ev types.OperationEvent) {
	h.update(func(*types.Status) {
		h.recent = append(h.recent, ev)
		if len(h.recent) > maxRecentEvents {
			h.recent = h.recent[len(h.recent)-maxRecentEvents:]
		}
	})
}

func (h *Hub) FinishWallet(outcome types.WalletOutcome) {
	h.update(func(s *types.Status) { s.State = outcome.State })
}
