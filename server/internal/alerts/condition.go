package alerts

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/logship/pkg/types"
	"github.com/obsidianstack/logship/server/internal/store"
)

// evalCondition evaluates a rule condition against a peer and the batch that
// was just accepted from it.
//
// Supported expressions (field operator value):
//
//	batches > 1000
//	records >= 1000000
//	batch_records > 500
//	event_type == ffdc_file
//	last_type == trace_file
//
// event_type matches when any record of batch carries the type.
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, p *store.Peer, batch types.Batch) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "event_type":
		if op != "==" {
			return false, 0
		}
		var n float64
		for _, rec := range batch {
			if t, _ := rec.Get("type"); t == rhs {
				n++
			}
		}
		return n > 0, n

	case "last_type":
		if op != "==" {
			return false, 0
		}
		return p.LastType == rhs, 0

	default:
		v, ok := numericField(field, p)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// numericField maps a field name to its value on the peer.
func numericField(field string, p *store.Peer) (float64, bool) {
	switch field {
	case "batches":
		return float64(p.Batches), true
	case "records":
		return float64(p.Records), true
	case "batch_records":
		return float64(p.LastBatchRecords), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
