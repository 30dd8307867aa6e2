package orchestrator

import (
	"encoding/json"
	"sync"
	"time"
)

const maxUsageEvents = 500

// UsageEvent records one operation for observability: what ran, how long it
// took and how much payload it moved.
type UsageEvent struct {
	Op        string        `json:"op"`
	At        time.Time     `json:"at"`
	Duration  time.Duration `json:"duration"`
	SizeBytes int           `json:"size_bytes"`
	Failed    bool          `json:"failed,omitempty"`
}

// UsageTracker keeps a bounded ring of recent events plus per-operation
// counters. It doubles as the analytics provider for backups.
type UsageTracker struct {
	mu     sync.Mutex
	events []UsageEvent
	counts map[string]int
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{counts: make(map[string]int)}
}

func (u *UsageTracker) Record(op string, start time.Time, size int, failed bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.events = append(u.events, UsageEvent{
		Op:        op,
		At:        start,
		Duration:  time.Since(start),
		SizeBytes: size,
		Failed:    failed,
	})
	if len(u.events) > maxUsageEvents {
		u.events = u.events[len(u.events)-maxUsageEvents:]
	}
	u.counts[op]++
}

// Counts returns a copy of the per-operation counters.
func (u *UsageTracker) Counts() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string]int, len(u.counts))
	for k, v := range u.counts {
		out[k] = v
	}
	return out
}

// Reset drops all transient usage records; called on shutdown.
func (u *UsageTracker) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = nil
	u.counts = make(map[string]int)
}

type analyticsBlob struct {
	Counts map[string]int `json:"counts"`
	Events []UsageEvent   `json:"events"`
}

// ExportAnalytics implements backup.AnalyticsProvider.
func (u *UsageTracker) ExportAnalytics() (json.RawMessage, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return json.Marshal(analyticsBlob{Counts: u.counts, Events: u.events})
}

// ImportAnalytics implements backup.AnalyticsProvider.
func (u *UsageTracker) ImportAnalytics(data json.RawMessage) error {
	var blob analyticsBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = blob.Events
	if blob.Counts != nil {
		u.counts = blob.Counts
	}
	return nil
}
