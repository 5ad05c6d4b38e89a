package api

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/obsidianstack/logship/server/internal/alerts"
	"github.com/obsidianstack/logship/server/internal/store"
)

// AlertLister provides the alerts shown by GET /api/v1/alerts.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads peer stats from the store and returns JSON responses.
type Handler struct {
	store  *store.Store
	alerts AlertLister
	conns  func() int
	mux    *http.ServeMux
}

// New creates a Handler and registers all routes. al and conns may be nil.
func New(st *store.Store, al AlertLister, conns func() int) http.Handler {
	h := &Handler{store: st, alerts: al, conns: conns, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/peers", h.listPeers)
	h.mux.HandleFunc("/api/v1/peers/", h.getPeer) // subtree, extracts {addr}
	h.mux.HandleFunc("/api/v1/types", h.types)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	peers := h.store.List()
	resp := HealthResponse{PeerCount: len(peers), State: "idle"}
	for _, p := range peers {
		resp.Batches += p.Batches
		resp.Records += p.Records
	}
	if len(peers) > 0 {
		resp.State = "receiving"
	}
	if h.conns != nil {
		resp.Connections = h.conns()
	}
	for _, a := range h.activeAlerts() {
		if a.State != alerts.StateFiring {
			continue
		}
		resp.AlertCount++
		if a.Severity == "critical" {
			resp.State = "alerting"
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// listPeers returns GET /api/v1/peers.
func (h *Handler) listPeers(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store).Peers)
}

// getPeer returns GET /api/v1/peers/{addr}.
func (h *Handler) getPeer(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	addr := strings.TrimPrefix(r.URL.Path, "/api/v1/peers/")
	if addr == "" {
		h.listPeers(w, r)
		return
	}

	p, ok := h.store.Get(addr)
	if !ok || time.Since(p.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "peer not found")
		return
	}
	jsonResp(w, http.StatusOK, toPeerResponse(p, time.Now()))
}

// types returns GET /api/v1/types, sorted by record count descending.
func (h *Handler) types(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	agg := map[string]*TypeCount{}
	for _, p := range h.store.List() {
		for t, n := range p.Types {
			tc, ok := agg[t]
			if !ok {
				tc = &TypeCount{Type: t}
				agg[t] = tc
			}
			tc.Records += n
			tc.Peers++
		}
	}

	out := make([]TypeCount, 0, len(agg))
	for _, tc := range agg {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Records != out[j].Records {
			return out[i].Records > out[j].Records
		}
		return out[i].Type < out[j].Type
	})
	jsonResp(w, http.StatusOK, out)
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	jsonResp(w, http.StatusOK, h.activeAlerts())
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// --- helpers ----------------------------------------------------------------

// BuildSnapshot renders every live peer in st.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	now := time.Now()
	peers := st.List()
	out := make([]PeerResponse, 0, len(peers))
	for _, p := range peers {
		out = append(out, toPeerResponse(p, now))
	}
	return SnapshotResponse{
		Peers:       out,
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) activeAlerts() []*alerts.Alert {
	if h.alerts == nil {
		return []*alerts.Alert{}
	}
	return h.alerts.Active()
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toPeerResponse maps a store.Peer to its JSON representation.
func toPeerResponse(p *store.Peer, now time.Time) PeerResponse {
	return PeerResponse{
		Addr:             p.Addr,
		Batches:          p.Batches,
		Records:          p.Records,
		LastBatchRecords: p.LastBatchRecords,
		LastSeq:          p.LastSeq,
		LastType:         p.LastType,
		Types:            p.Types,
		Diagnostics:      computeDiagnostics(p, now),
		FirstSeen:        p.FirstSeen.UTC().Format(time.RFC3339),
		LastSeen:         p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
