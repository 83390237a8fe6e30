// Package telemetry publishes tuning reports: an in-memory history, an HTTP
// JSON API with a live event stream, and a logging reporter.
package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/rjboer/adrv9002/internal/adrv9002"
	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// Config represents the runtime configuration exposed by the telemetry hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 1_000
)

func defaultConfig() Config {
	return Config{HistoryLimit: 50}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// Record is one tuning run as published by the hub.
type Record struct {
	Timestamp time.Time              `json:"timestamp"`
	Report    *adrv9002.TuningReport `json:"report,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Reporter receives the outcome of every tuning run.
type Reporter interface {
	Report(report *adrv9002.TuningReport, err error)
}

// Hub collects history and fans out tuning records to subscribers.
type Hub struct {
	mu          sync.RWMutex
	history     []Record
	subscribers map[chan Record]struct{}
	config      Config
	diag        *adrv9002.Diagnostics
	started     time.Time
	logger      logging.Logger
}

// NewHub builds a hub keeping up to historyLimit records.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	cfg := defaultConfig()
	if historyLimit > 0 {
		cfg.HistoryLimit = historyLimit
	}
	cfg, err := validateConfig(cfg, defaultConfig())
	if err != nil {
		cfg = defaultConfig()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		subscribers: make(map[chan Record]struct{}),
		config:      cfg,
		started:     time.Now(),
		logger:      logger.With(logging.F("subsystem", "telemetry")),
	}
}

// SetDiagnostics attaches the diagnostics of a debug-enabled Phy.
func (h *Hub) SetDiagnostics(d *adrv9002.Diagnostics) {
	h.mu.Lock()
	h.diag = d
	h.mu.Unlock()
}

// Report implements Reporter and records a tuning run.
func (h *Hub) Report(report *adrv9002.TuningReport, err error) {
	rec := Record{Timestamp: time.Now(), Report: report}
	if err != nil {
		rec.Error = err.Error()
	}

	h.mu.Lock()
	h.history = append(h.history, rec)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			h.logger.Warn("dropping record for slow subscriber")
		}
	}
	h.mu.Unlock()
}

// History returns a copy of stored records.
func (h *Hub) History() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record, len(h.history))
	copy(out, h.history)
	return out
}

// Latest returns the most recent record.
func (h *Hub) Latest() (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return Record{}, false
	}
	return h.history[len(h.history)-1], true
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Record, func()) {
	ch := make(chan Record, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// MultiReporter fans out records to multiple destinations.
type MultiReporter []Reporter

// Report forwards the run to each configured reporter.
func (m MultiReporter) Report(report *adrv9002.TuningReport, err error) {
	for _, r := range m {
		if r != nil {
			r.Report(report, err)
		}
	}
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.History())
}

func (h *Hub) handleLatest(w http.ResponseWriter, _ *http.Request) {
	rec, ok := h.Latest()
	if !ok {
		http.Error(w, "no tuning run yet", http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	current := h.config
	h.mu.RUnlock()

	cfg, err := validateConfig(incoming, current)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.applyConfig(cfg)
	h.mu.Unlock()

	writeJSON(w, cfg)
}

// DiagnosticsView is the JSON form of the Phy diagnostics.
type DiagnosticsView struct {
	Updated     time.Time                `json:"updated"`
	Calibration ssi.CalibrationConfig    `json:"calibration"`
	Results     []adrv9002.ChannelResult `json:"results"`
	Dump        string                   `json:"dump"`
}

func (h *Hub) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.mu.RLock()
	d := h.diag
	h.mu.RUnlock()
	if d == nil {
		http.Error(w, "diagnostics disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, DiagnosticsView{
		Updated:     d.Updated(),
		Calibration: d.Calibration(),
		Results:     d.Results(),
		Dump:        d.Dump(),
	})
}

// HealthStatus summarizes the last run.
type HealthStatus struct {
	Status       string        `json:"status"`
	Tuned        int           `json:"tuned"`
	Failed       int           `json:"failed"`
	Uptime       time.Duration `json:"uptime"`
	NumGoroutine int           `json:"numGoroutine"`
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := HealthStatus{Status: "idle", Uptime: time.Since(h.started), NumGoroutine: runtime.NumGoroutine()}
	if rec, ok := h.Latest(); ok {
		st.Status = "ok"
		if rec.Report != nil {
			st.Tuned = len(rec.Report.Tuned())
			st.Failed = len(rec.Report.Failed())
		}
		if rec.Error != "" {
			st.Status = "degraded"
		}
	}
	writeJSON(w, st)
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	send := func(rec Record) {
		payload, _ := json.Marshal(rec)
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
	}

	// send existing history for immediate display
	for _, rec := range h.History() {
		send(rec)
	}
	flusher.Flush()

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			send(rec)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
