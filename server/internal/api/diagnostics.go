package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/obsidianstack/logship/server/internal/store"
)

// idleAfter is how long a peer may go without a batch before it is flagged.
const idleAfter = 2 * time.Minute

// DiagnosticHint is one human-readable insight about a peer's delivery.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a peer's stats as of now.
// Hints are ordered critical first, then warnings, then info and ok.
func computeDiagnostics(p *store.Peer, now time.Time) []DiagnosticHint {
	var hints []DiagnosticHint

	if idle := now.Sub(p.UpdatedAt); idle > idleAfter {
		mins := idle.Minutes()
		hints = append(hints, DiagnosticHint{
			Key:   "idle",
			Level: "warning",
			Title: "No recent batches",
			Detail: fmt.Sprintf(
				"Nothing has arrived from %s for %.0f minutes. "+
					"The agent may be stopped, its log files may be quiet, "+
					"or its connection may be failing and retrying.",
				p.Addr, mins),
			Value: &mins,
		})
	}

	if n := p.Types["ffdc_file"]; n > 0 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:   "ffdc",
			Level: "critical",
			Title: "First-failure data captured",
			Detail: fmt.Sprintf(
				"%d first-failure data capture records were shipped from %s. "+
					"These are written when the application server hits an unexpected error.",
				n, p.Addr),
			Value: &v,
		})
	}

	if p.Batches == 1 {
		hints = append(hints, DiagnosticHint{
			Key:    "first_batch",
			Level:  "info",
			Title:  "New peer",
			Detail: "This agent has delivered its first batch. Totals fill in as more arrive.",
		})
	}

	if len(hints) == 0 {
		avg := float64(p.Records) / float64(p.Batches)
		hints = append(hints, DiagnosticHint{
			Key:    "delivering",
			Level:  "ok",
			Title:  "Delivering",
			Detail: fmt.Sprintf("Batches arrive regularly, averaging %.1f records each.", avg),
			Value:  &avg,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

func levelRank(level string) int {
	switch level {
	case "critical":
		return 0
	case "warning":
		return 1
	case "info":
		return 2
	default:
		return 3
	}
}
