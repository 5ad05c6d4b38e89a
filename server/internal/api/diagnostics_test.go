package api

import (
	"testing"
	"time"

	"github.com/obsidianstack/logship/server/internal/store"
)

func TestComputeDiagnostics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		peer store.Peer
		keys []string
	}{
		{
			name: "healthy",
			peer: store.Peer{Batches: 4, Records: 10, UpdatedAt: now},
			keys: []string{"delivering"},
		},
		{
			name: "first batch",
			peer: store.Peer{Batches: 1, Records: 3, UpdatedAt: now},
			keys: []string{"first_batch"},
		},
		{
			name: "idle with ffdc",
			peer: store.Peer{
				Batches:   3,
				Records:   9,
				UpdatedAt: now.Add(-10 * time.Minute),
				Types:     map[string]uint64{"ffdc_file": 2},
			},
			keys: []string{"ffdc", "idle"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := computeDiagnostics(&tc.peer, now)
			if len(got) != len(tc.keys) {
				t.Fatalf("hints: got %+v, want keys %v", got, tc.keys)
			}
			for i, k := range tc.keys {
				if got[i].Key != k {
					t.Errorf("hint[%d]: got %q, want %q", i, got[i].Key, k)
				}
			}
		})
	}
}
