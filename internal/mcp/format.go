package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gateway-fm/cyclebot/internal/storage"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// section returns a markdown section header.
func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func formatMs(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.2fs", v/1000)
	}
	return fmt.Sprintf("%.1fms", v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatResult(r types.OperationResult) string {
	out := string(r.Status)
	if r.TxHash != "" {
		out += " " + r.TxHash
	}
	if r.Message != "" {
		out += " (" + r.Message + ")"
	}
	return out
}

func formatStatus(raw json.RawMessage) string {
	var st types.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Sprintf("Error parsing status: %v", err)
	}

	lines := joinLines(
		section("Cycle Bot Status"),
		kv("State", st.State),
		kv("Network", st.Network),
		kv("Wallet", st.Wallet),
		kv("Cycle", fmt.Sprintf("%d / %d", st.Cycle, st.Total)),
		kv("Progress", formatPct(st.Progress)),
	)

	if st.Snapshot != nil {
		bal := []string{section("Balances"), kv("Native", st.Snapshot.Native)}
		for _, tok := range st.Snapshot.Tokens {
			bal = append(bal, kv(tok.Symbol, tok.Balance))
		}
		lines += "\n\n" + joinLines(bal...)
	}

	if len(st.Table) > 0 {
		rows := []string{section("Adapters")}
		for _, r := range st.Table {
			rows = append(rows, kv(r.Adapter, r.State))
		}
		lines += "\n\n" + joinLines(rows...)
	}

	if len(st.Recent) > 0 {
		rows := []string{section("Recent Operations")}
		start := 0
		if len(st.Recent) > 10 {
			start = len(st.Recent) - 10
		}
		for _, ev := range st.Recent[start:] {
			rows = append(rows, fmt.Sprintf("- cycle %d %s %s: %s", ev.Cycle+1, ev.Adapter, ev.Operation, formatResult(ev.Result)))
		}
		lines += "\n\n" + joinLines(rows...)
	}

	if len(st.Latency) > 0 {
		names := make([]string, 0, len(st.Latency))
		for name := range st.Latency {
			names = append(names, name)
		}
		sort.Strings(names)

		rows := []string{section("Operation Latency (p50 / p90 / max)")}
		for _, name := range names {
			l := st.Latency[name]
			if l == nil {
				continue
			}
			rows = append(rows, kv(name, fmt.Sprintf("%s / %s / %s", formatMs(l.P50), formatMs(l.P90), formatMs(l.Max))))
		}
		lines += "\n\n" + joinLines(rows...)
	}

	return lines
}

func formatHealth(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}
	return joinLines(
		section("Cycle Bot Health"),
		kv("Status", m["status"]),
		kv("Uptime", m["uptime"]),
	)
}

func formatHistory(raw json.RawMessage) string {
	var hist []types.TransactionRecord
	if err := json.Unmarshal(raw, &hist); err != nil {
		return fmt.Sprintf("Error parsing history: %v", err)
	}
	if len(hist) == 0 {
		return joinLines(section("Cycle History"), "No cycles recorded yet.")
	}

	lines := []string{section(fmt.Sprintf("Cycle History (%d)", len(hist)))}
	for _, r := range hist {
		lines = append(lines, kv(formatTime(r.Time), r.Amount))
	}
	return joinLines(lines...)
}

func formatRuns(raw json.RawMessage) string {
	var page storage.PaginatedRuns
	if err := json.Unmarshal(raw, &page); err != nil {
		return fmt.Sprintf("Error parsing runs: %v", err)
	}
	if len(page.Runs) == 0 {
		return joinLines(section("Wallet Runs"), "No runs recorded.")
	}

	lines := []string{section(fmt.Sprintf("Wallet Runs (%d-%d of %d)", page.Offset+1, page.Offset+len(page.Runs), page.Total))}
	for _, r := range page.Runs {
		lines = append(lines, fmt.Sprintf("- %s  %s  %s  cycles %d/%d  ops %d (ok %d, failed %d)",
			r.ID, r.Wallet, r.State, r.Cycles, r.TotalCycles, r.Operations, r.Succeeded, r.Failed))
	}
	return joinLines(lines...)
}

func formatRun(raw json.RawMessage) string {
	var r storage.WalletRun
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Sprintf("Error parsing run: %v", err)
	}
	finished := "-"
	if r.FinishedAt != nil {
		finished = formatTime(*r.FinishedAt)
	}
	return joinLines(
		section("Wallet Run "+r.ID),
		kv("Wallet", r.Wallet),
		kv("Network", r.Network),
		kv("State", r.State),
		kv("Started", formatTime(r.StartedAt)),
		kv("Finished", finished),
		kv("Cycles", fmt.Sprintf("%d / %d", r.Cycles, r.TotalCycles)),
		kv("Operations", r.Operations),
		kv("Succeeded", r.Succeeded),
		kv("Failed", r.Failed),
		func() string {
			if r.Error == "" {
				return ""
			}
			return kv("Error", r.Error)
		}(),
	)
}

func formatOperations(raw json.RawMessage) string {
	var page storage.PaginatedOperations
	if err := json.Unmarshal(raw, &page); err != nil {
		return fmt.Sprintf("Error parsing operations: %v", err)
	}
	if len(page.Operations) == 0 {
		return joinLines(section("Operations"), "No operations recorded.")
	}

	lines := []string{section(fmt.Sprintf("Operations (%d-%d of %d)", page.Offset+1, page.Offset+len(page.Operations), page.Total))}
	for _, op := range page.Operations {
		res := types.OperationResult{Status: op.Status, TxHash: op.TxHash, Message: op.Message}
		lines = append(lines, fmt.Sprintf("- cycle %d %s %s: %s [%s]",
			op.Cycle+1, op.Adapter, op.Operation, formatResult(res), formatMs(float64(op.DurationMs))))
	}
	return joinLines(lines...)
}
