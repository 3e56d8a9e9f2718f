package aggregator

import (
	"sync"
	"time"
)

// VenueHealth summarizes one venue's recent fetch behavior for external
// monitoring. A venue that failed this cycle is excluded from that cycle only;
// nothing in the engine retries it before the next cycle.
type VenueHealth struct {
	Venue               string
	LastSuccess         time.Time
	LastFailure         time.Time
	LastError           string
	ConsecutiveFailures int
}

// Responding reports whether the most recent fetch succeeded.
func (h VenueHealth) Responding() bool {
	return h.ConsecutiveFailures == 0 && !h.LastSuccess.IsZero()
}

// HealthRecorder tracks per-venue fetch outcomes. Safe for concurrent use by
// the aggregator's fan-out goroutines.
type HealthRecorder struct {
	mu     sync.Mutex
	venues map[string]VenueHealth
}

// NewHealthRecorder creates an empty recorder.
func NewHealthRecorder() *HealthRecorder {
	return &HealthRecorder{venues: make(map[string]VenueHealth)}
}

// RecordSuccess marks a successful fetch for the venue.
func (r *HealthRecorder) RecordSuccess(venue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.venues[venue]
	h.Venue = venue
	h.LastSuccess = time.Now()
	h.ConsecutiveFailures = 0
	h.LastError = ""
	r.venues[venue] = h
}

// RecordFailure marks a failed fetch for the venue.
func (r *HealthRecorder) RecordFailure(venue string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.venues[venue]
	h.Venue = venue
	h.LastFailure = time.Now()
	h.ConsecutiveFailures++
	if err != nil {
		h.LastError = err.Error()
	}
	r.venues[venue] = h
}

// Snapshot returns a copy of every venue's health record.
func (r *HealthRecorder) Snapshot() map[string]VenueHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]VenueHealth, len(r.venues))
	for k, v := range r.venues {
		out[k] = v
	}
	return out
}
