package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/campuskit/authcore/observability"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Recorder is the audit trail interface. The ring buffer is the source
// of truth for Query and Stats; events are additionally mirrored to the
// application logger.
type Recorder interface {
	// Log appends an event to the trail.
	Log(ctx context.Context, event *Event)

	// Query returns matching events, most recent first.
	Query(filter *Filter) []*Event

	// Stats aggregates events recorded within the given window.
	Stats(window time.Duration) Stats

	// Export renders the whole trail in the given format (json, csv),
	// oldest first.
	Export(format string) (string, error)

	// Clear removes all events and returns the number removed.
	// Administrative and rare; callers are expected to audit the clear
	// itself.
	Clear() int
}

// Filter narrows a Query.
type Filter struct {
	// UserID restricts to events for one principal.
	UserID string

	// Types restricts to the given event types.
	Types []EventType

	// Success restricts by outcome when non-nil (true matches only
	// OutcomeSuccess).
	Success *bool

	// From and To bound the time range (inclusive, zero means open).
	From time.Time
	To   time.Time

	// Limit caps the number of results (0 means no cap).
	Limit int
}

// Stats summarizes recent audit activity.
type Stats struct {
	// Total is the number of events in the window.
	Total int `json:"total"`

	// ByType counts events per type.
	ByType map[EventType]int `json:"by_type"`

	// SuccessRate is the fraction of successful events, 0..1.
	SuccessRate float64 `json:"success_rate"`

	// UniqueUsers is the number of distinct non-empty user IDs.
	UniqueUsers int `json:"unique_users"`
}

// Config represents audit recorder configuration.
type Config struct {
	// Capacity is the ring buffer size; the oldest events are silently
	// dropped once full.
	Capacity int `yaml:"capacity,omitempty" json:"capacity,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{Capacity: 1000}
}

// recorder implements Recorder with a bounded ring buffer.
type recorder struct {
	logger  observability.Logger
	metrics *Metrics

	mu       sync.RWMutex
	events   []*Event
	start    int // index of the oldest event
	size     int
	capacity int
}

// RecorderOption is a functional option for the recorder.
type RecorderOption func(*recorder)

// WithRecorderLogger sets the application logger events are mirrored to.
func WithRecorderLogger(logger observability.Logger) RecorderOption {
	return func(r *recorder) {
		r.logger = logger
	}
}

// WithRecorderMetrics sets the metrics.
func WithRecorderMetrics(metrics *Metrics) RecorderOption {
	return func(r *recorder) {
		r.metrics = metrics
	}
}

// NewRecorder creates a new ring-buffer audit recorder.
func NewRecorder(config *Config, opts ...RecorderOption) Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = DefaultConfig().Capacity
	}

	r := &recorder{
		logger:   observability.NopLogger(),
		events:   make([]*Event, capacity),
		capacity: capacity,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Log appends an event, dropping the oldest when the buffer is full, and
// mirrors it to the application logger.
func (r *recorder) Log(ctx context.Context, event *Event) {
	if event == nil {
		return
	}

	r.mu.Lock()
	if r.size < r.capacity {
		r.events[(r.start+r.size)%r.capacity] = event
		r.size++
	} else {
		r.events[r.start] = event
		r.start = (r.start + 1) % r.capacity
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordEvent(event.Type, event.Outcome)
	}

	fields := []observability.Field{
		observability.String("audit_id", event.ID),
		observability.String("type", string(event.Type)),
		observability.String("outcome", string(event.Outcome)),
	}
	if event.UserID != "" {
		fields = append(fields, observability.String("user_id", event.UserID))
	}
	if event.Resource != "" {
		fields = append(fields, observability.String("resource", event.Resource),
			observability.String("action", event.Action))
	}
	if event.Reason != "" {
		fields = append(fields, observability.String("reason", event.Reason))
	}

	logger := r.logger.WithContext(ctx)
	if event.Success() {
		logger.Info("audit event", fields...)
	} else {
		logger.Warn("audit event", fields...)
	}
}

// Query returns matching events, most recent first.
func (r *recorder) Query(filter *Filter) []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Event
	// Walk from newest to oldest.
	for i := r.size - 1; i >= 0; i-- {
		event := r.events[(r.start+i)%r.capacity]
		if !matches(event, filter) {
			continue
		}
		results = append(results, event)
		if filter != nil && filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results
}

// matches applies a filter to a single event.
func matches(event *Event, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if filter.UserID != "" && event.UserID != filter.UserID {
		return false
	}
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Success != nil && event.Success() != *filter.Success {
		return false
	}
	if !filter.From.IsZero() && event.Timestamp.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && event.Timestamp.After(filter.To) {
		return false
	}
	return true
}

// Stats aggregates events recorded within the window ending now.
func (r *recorder) Stats(window time.Duration) Stats {
	cutoff := time.Now().Add(-window)

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{ByType: make(map[EventType]int)}
	users := make(map[string]struct{})
	successes := 0

	for i := 0; i < r.size; i++ {
		event := r.events[(r.start+i)%r.capacity]
		if event.Timestamp.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.ByType[event.Type]++
		if event.Success() {
			successes++
		}
		if event.UserID != "" {
			users[event.UserID] = struct{}{}
		}
	}

	stats.UniqueUsers = len(users)
	if stats.Total > 0 {
		stats.SuccessRate = float64(successes) / float64(stats.Total)
	}

	return stats
}

// Export renders the whole trail oldest first.
func (r *recorder) Export(format string) (string, error) {
	r.mu.RLock()
	events := make([]*Event, 0, r.size)
	for i := 0; i < r.size; i++ {
		events = append(events, r.events[(r.start+i)%r.capacity])
	}
	r.mu.RUnlock()

	switch format {
	case FormatJSON, "":
		data, err := json.Marshal(events)
		if err != nil {
			return "", fmt.Errorf("failed to export audit trail: %w", err)
		}
		return string(data), nil
	case FormatCSV:
		return exportCSV(events)
	default:
		return "", fmt.Errorf("unsupported export format: %q", format)
	}
}

// exportCSV renders events as CSV with a header row.
func exportCSV(events []*Event) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{"id", "timestamp", "type", "outcome", "user_id", "email", "role", "resource", "action", "reason", "ip_address"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, e := range events {
		record := []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339Nano),
			string(e.Type),
			string(e.Outcome),
			e.UserID,
			e.Email,
			e.Role,
			e.Resource,
			e.Action,
			e.Reason,
			e.IPAddress,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// Clear removes all events.
func (r *recorder) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.size
	r.events = make([]*Event, r.capacity)
	r.start = 0
	r.size = 0

	return removed
}

// noopRecorder discards all events.
type noopRecorder struct{}

// NewNoopRecorder creates a recorder that discards everything.
func NewNoopRecorder() Recorder {
	return &noopRecorder{}
}

func (r *noopRecorder) Log(_ context.Context, _ *Event) {}

func (r *noopRecorder) Query(_ *Filter) []*Event { return nil }

func (r *noopRecorder) Stats(_ time.Duration) Stats {
	return Stats{ByType: make(map[EventType]int)}
}

func (r *noopRecorder) Export(_ string) (string, error) { return "[]", nil }

func (r *noopRecorder) Clear() int { return 0 }

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*recorder)(nil)
	_ Recorder = (*noopRecorder)(nil)
)
