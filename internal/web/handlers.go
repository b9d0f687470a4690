package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/cjeanneret/SunTrack/internal/hw/rtc"
	"github.com/cjeanneret/SunTrack/internal/logic/solar"
	"github.com/cjeanneret/SunTrack/internal/logic/tracking"
	"github.com/cjeanneret/SunTrack/internal/store"
)

const (
	maxBodyBytes      = 1 << 10
	maxAdjustCycles   = 100
	defaultHistory    = 50
	maxHistory        = 1000
	minAdjustInterval = 5 * time.Second
)

// Tracker is the part of the tracking loop the handlers drive.
type Tracker interface {
	State() tracking.AngleState
	Last() (tracking.Report, bool)
	Run(ctx context.Context, cycles int) error
}

// History reads stored tracking samples.
type History interface {
	Recent(ctx context.Context, limit int, opts ...store.QueryOption) ([]store.Sample, error)
}

// AdjustRequest is the optional body of POST /adjust.
type AdjustRequest struct {
	Cycles int `json:"cycles"` // 0 = one cycle
}

// ValidateAdjustRequest checks the requested cycle count.
func ValidateAdjustRequest(r AdjustRequest) error {
	if r.Cycles < 0 || r.Cycles > maxAdjustCycles {
		return fmt.Errorf("cycles must be between 0 and %d (0 = one cycle)", maxAdjustCycles)
	}
	return nil
}

// PositionResponse is the body of GET /position.
type PositionResponse struct {
	Site   solar.Site    `json:"site"`
	Fix    solar.TimeFix `json:"fix"`
	Angles solar.Angles  `json:"angles"`
	Error  string        `json:"error,omitempty"`
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	State   tracking.AngleState `json:"state"`
	Last    *tracking.Report    `json:"last,omitempty"`
	Running bool                `json:"running"`
	Clients int                 `json:"clients"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Tracker     Tracker // nil: POST /adjust returns 503
	History     History // nil: GET /history returns 503
	Site        solar.Site
	Clock       rtc.Source

	baseCtx   context.Context
	runningMu sync.Mutex
	running   bool
	lastRun   time.Time
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, tracker Tracker, history History, site solar.Site, clock rtc.Source, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Tracker:     tracker,
		History:     history,
		Site:        site,
		Clock:       clock,
		baseCtx:     context.Background(),
		staticFS:    staticFS,
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandlePosition returns the sun position for the configured site and the
// current clock reading.
func (h *Handlers) HandlePosition(w http.ResponseWriter, r *http.Request) {
	fix, err := h.Clock.Now()
	if err != nil {
		http.Error(w, "read clock: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	resp := PositionResponse{Site: h.Site, Fix: fix}
	resp.Angles, err = solar.Calculate(h.Site, fix)
	switch {
	case errors.Is(err, solar.ErrDegenerateAzimuth):
		resp.Error = err.Error()
	case err != nil:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleState returns the current heading estimate and the last cycle.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.Tracker == nil {
		http.Error(w, "tracker not configured", http.StatusServiceUnavailable)
		return
	}
	resp := StateResponse{
		State:   h.Tracker.State(),
		Clients: h.Broadcaster.Clients(),
	}
	if last, ok := h.Tracker.Last(); ok {
		resp.Last = &last
	}
	h.runningMu.Lock()
	resp.Running = h.running
	h.runningMu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// HandleAdjust handles POST /adjust to run tracking cycles now.
func (h *Handlers) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AdjustRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateAdjustRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Cycles == 0 {
		req.Cycles = 1
	}

	if h.Tracker == nil {
		http.Error(w, "tracker not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "adjustment already in progress", http.StatusConflict)
		return
	}
	if !h.lastRun.IsZero() && time.Since(h.lastRun) < minAdjustInterval {
		h.runningMu.Unlock()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	h.running = true
	h.lastRun = time.Now()
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		if err := h.Tracker.Run(h.baseCtx, req.Cycles); err != nil {
			h.Broadcaster.Broadcast("error", "Adjustment failed: "+err.Error())
			debug.Error(fmt.Errorf("adjust: %w", err))
		} else {
			h.Broadcaster.Broadcast("info", "Adjustment complete")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleHistory returns stored samples, newest first.
// Query: limit=n, unconverged=1, since=RFC3339.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		http.Error(w, "history not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	limit := defaultHistory
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxHistory {
			http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxHistory), http.StatusBadRequest)
			return
		}
		limit = n
	}

	var opts []store.QueryOption
	if q.Get("unconverged") == "1" {
		opts = append(opts, store.Unconverged)
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "since must be an RFC3339 time", http.StatusBadRequest)
			return
		}
		opts = append(opts, store.Since(t))
	}

	samples, err := h.History.Recent(r.Context(), limit, opts...)
	if err != nil {
		http.Error(w, "query history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
