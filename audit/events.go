// Package audit provides the append-only security audit trail: a bounded
// in-memory ring buffer with structured query, statistics and export.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeAuthorization  EventType = "authorization"
	EventTypeAdministrative EventType = "administrative"
	EventTypeDataAccess     EventType = "data_access"
	EventTypeRateLimit      EventType = "rate_limit"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is an immutable record of a security-relevant decision. Events
// are never mutated after Log; ordering is insertion order.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Outcome is the outcome of the audited action.
	Outcome Outcome `json:"outcome"`

	// UserID identifies the principal, when resolved.
	UserID string `json:"user_id,omitempty"`

	// Email is the principal's email, when resolved.
	Email string `json:"email,omitempty"`

	// Role is the principal's role, when resolved.
	Role string `json:"role,omitempty"`

	// Resource is the resource being accessed.
	Resource string `json:"resource,omitempty"`

	// Action is the action being performed.
	Action string `json:"action,omitempty"`

	// Reason explains a failure or denial.
	Reason string `json:"reason,omitempty"`

	// IPAddress is the caller's source address.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the caller's user agent.
	UserAgent string `json:"user_agent,omitempty"`

	// Metadata contains additional request metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Success reports whether the event records a successful outcome.
func (e *Event) Success() bool {
	return e.Outcome == OutcomeSuccess
}

// NewEvent creates a new audit event with an ID and UTC timestamp.
func NewEvent(eventType EventType, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Outcome:   outcome,
	}
}

// WithPrincipal sets the principal fields.
func (e *Event) WithPrincipal(userID, email, role string) *Event {
	e.UserID = userID
	e.Email = email
	e.Role = role
	return e
}

// WithTarget sets the resource and action.
func (e *Event) WithTarget(resource, action string) *Event {
	e.Resource = resource
	e.Action = action
	return e
}

// WithReason sets the reason.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithOrigin sets the caller's IP address and user agent.
func (e *Event) WithOrigin(ip, userAgent string) *Event {
	e.IPAddress = ip
	e.UserAgent = userAgent
	return e
}

// WithMetadata adds a metadata entry.
func (e *Event) WithMetadata(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// AuthenticationEvent creates an authentication attempt event.
func AuthenticationEvent(outcome Outcome, userID, email, reason string) *Event {
	return NewEvent(EventTypeAuthentication, outcome).
		WithPrincipal(userID, email, "").
		WithReason(reason)
}

// AuthorizationEvent creates an authorization decision event.
func AuthorizationEvent(outcome Outcome, userID, email, role, resource, action, reason string) *Event {
	return NewEvent(EventTypeAuthorization, outcome).
		WithPrincipal(userID, email, role).
		WithTarget(resource, action).
		WithReason(reason)
}

// AdministrativeEvent creates an administrative action event.
func AdministrativeEvent(outcome Outcome, userID, action, reason string) *Event {
	return NewEvent(EventTypeAdministrative, outcome).
		WithPrincipal(userID, "", "").
		WithTarget("", action).
		WithReason(reason)
}

// DataAccessEvent creates a data access event.
func DataAccessEvent(outcome Outcome, userID, resource, action string) *Event {
	return NewEvent(EventTypeDataAccess, outcome).
		WithPrincipal(userID, "", "").
		WithTarget(resource, action)
}

// RateLimitEvent creates a rate-limit violation event.
func RateLimitEvent(identifier, reason string) *Event {
	return NewEvent(EventTypeRateLimit, OutcomeDenied).
		WithReason(reason).
		WithMetadata("identifier", identifier)
}
