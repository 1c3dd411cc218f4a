package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventIndexBuild EventType = "index_build"
)

// SearchEvent describes one answered search request.
type SearchEvent struct {
	Type        EventType `json:"type"`
	Queries     []string  `json:"queries"`
	Require     []string  `json:"require,omitempty"`
	Candidates  int       `json:"candidates"`
	Returned    int       `json:"returned"`
	Corrections int       `json:"corrections,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

// IndexEvent describes one completed index build.
type IndexEvent struct {
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope peeks at the type of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}

// normalize fills Type and Timestamp when the caller left them empty.
func (e SearchEvent) normalize() SearchEvent {
	if e.Type == "" {
		e.Type = EventSearch
		if e.Returned == 0 {
			e.Type = EventZeroResult
		}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

func (e IndexEvent) normalize() IndexEvent {
	e.Type = EventIndexBuild
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}
