package models

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of operations the audit trail records.
type EventType string

const (
	EventAccountCreate     EventType = "account_create"
	EventAccountAutoCreate EventType = "account_auto_create"
	EventAccountUpdate     EventType = "account_update"
	EventAccountDelete     EventType = "account_delete"
	EventAccountBulkDelete EventType = "account_bulk_delete"
	EventLogin             EventType = "login"
	EventExport            EventType = "export"
)

// EventStatus is the outcome of the operation an event describes.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusPending EventStatus = "pending"
	StatusTimeout EventStatus = "timeout"
)

// Target identifies the entity an audited operation acted on.
type Target struct {
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id,omitempty"`
	EntityIDs  []string `json:"entity_ids,omitempty"`
	Name       string   `json:"name,omitempty"`
	Platform   Platform `json:"platform,omitempty"`
}

// RequestContext captures where an audited request came from.
type RequestContext struct {
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Method    string    `json:"method,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FieldChange records one field-level difference between the before and
// after snapshots. Values of encrypted fields are redacted before they
// reach the event.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// EventDetails is the structured payload of an event. Known fields are
// strongly typed; anything else rides in Extra as an opaque JSON blob.
type EventDetails struct {
	Before  map[string]string `json:"before,omitempty"`
	After   map[string]string `json:"after,omitempty"`
	Changes []FieldChange     `json:"changes,omitempty"`

	// UsernameSource reports pool/fallback provenance for synthesized
	// usernames so degraded synthesis stays observable.
	UsernameSource string `json:"username_source,omitempty"`

	BatchIndex *int `json:"batch_index,omitempty"`

	Extra json.RawMessage `json:"extra,omitempty"`
}

// EventError describes a failure without leaking internals to callers.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Performance carries operation timing captured by the orchestrator.
type Performance struct {
	DurationMs int64 `json:"duration_ms"`
	MemoryKB   int64 `json:"memory_kb,omitempty"`
}

// Location is optional coarse geolocation resolved from the client IP.
type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// Security is the risk block attached to every event.
type Security struct {
	RiskScore int      `json:"risk_score"` // 0-100
	Flagged   bool     `json:"flagged"`
	Reasons   []string `json:"reasons,omitempty"`
}

// Retention controls when an event becomes eligible for deletion.
// Permanent events are exempt from expiry regardless of ExpiresAt.
type Retention struct {
	ExpiresAt time.Time `json:"expires_at"`
	Permanent bool      `json:"permanent"`
}

// AuditEvent is the immutable record of one mutating operation.
//
// Events are write-once; the only permitted mutations are the
// pending->final status transition performed by the orchestrator that
// created the event, and the security/retention updates applied by
// MarkSecurityEvent.
type AuditEvent struct {
	EventID   string      `json:"event_id"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`
	ActorID   string      `json:"actor_id"`

	Target         Target         `json:"target"`
	RequestContext RequestContext `json:"request_context"`
	Details        EventDetails   `json:"details"`

	Error       *EventError  `json:"error,omitempty"`
	Performance *Performance `json:"performance,omitempty"`
	Location    *Location    `json:"location,omitempty"`

	Security  Security  `json:"security"`
	Retention Retention `json:"retention"`

	// Signature is an HMAC over the immutable identity fields, used to
	// detect tampering with stored events.
	Signature string `json:"signature,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EventFilter narrows audit queries. Zero values mean "no constraint".
type EventFilter struct {
	ActorID      string
	EventType    EventType
	Status       EventStatus
	EntityType   string
	Platform     Platform
	FlaggedOnly  bool
	MinRiskScore int
	From         time.Time
	To           time.Time

	// SecuritySort orders results by risk score descending, then
	// timestamp, instead of the default timestamp descending.
	SecuritySort bool
}

// Pagination bounds a query result page.
type Pagination struct {
	Offset int
	Limit  int
}

// EventPage is one page of audit query results.
type EventPage struct {
	Events []*AuditEvent `json:"events"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// DayTrend is the per-day event count split by outcome.
type DayTrend struct {
	Day     string `json:"day"` // YYYY-MM-DD
	Total   int    `json:"total"`
	Success int    `json:"success"`
	Failure int    `json:"failure"`
}

// ErrorFrequency is one row of the top-N error ranking.
type ErrorFrequency struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// DurationStats summarizes operation timing across matched events.
type DurationStats struct {
	AvgMs int64 `json:"avg_ms"`
	MinMs int64 `json:"min_ms"`
	MaxMs int64 `json:"max_ms"`
}

// AuditStats is the aggregation result over a trailing time window.
type AuditStats struct {
	WindowStart   time.Time           `json:"window_start"`
	WindowEnd     time.Time           `json:"window_end"`
	TotalEvents   int                 `json:"total_events"`
	ByType        map[EventType]int   `json:"by_type"`
	ByStatus      map[EventStatus]int `json:"by_status"`
	ByPlatform    map[Platform]int    `json:"by_platform"`
	DailyTrend    []DayTrend          `json:"daily_trend"`
	Durations     DurationStats       `json:"durations"`
	TopErrors     []ErrorFrequency    `json:"top_errors"`
	Partial       bool                `json:"partial,omitempty"`
}
