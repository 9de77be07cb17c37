// Package agents declares the narrow interfaces through which the
// orchestrator invokes the external collaborator agents. The domain
// logic behind each interface (risk heuristics, message wording,
// calendar math) lives outside this module.
package agents

import (
	"context"
	"errors"
	"time"
)

// ErrExternalService marks a failed or timed-out collaborator call.
var ErrExternalService = errors.New("external service call failed")

// Incident is the workflow target handed to the detection agent.
type Incident struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	ReportedAt  time.Time `json:"reported_at,omitempty"`
}

// Analysis is the detection agent's risk assessment.
type Analysis struct {
	IncidentID string  `json:"incident_id"`
	RiskScore  float64 `json:"risk_score"`
	Severity   string  `json:"severity"`
	Summary    string  `json:"summary"`
}

// Verification is the content verifier's verdict.
type Verification struct {
	Verified  bool     `json:"verified"`
	RiskScore float64  `json:"risk_score"`
	Checks    []string `json:"checks"`
}

// EventSpec describes the calendar event to schedule.
type EventSpec struct {
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Attendees []string  `json:"attendees,omitempty"`
}

// ScheduledEvent is the scheduler's confirmation.
type ScheduledEvent struct {
	EventID string    `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Notification describes an outbound message.
type Notification struct {
	Channel    string   `json:"channel"`
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

// Delivery is the per-recipient delivery outcome.
type Delivery struct {
	Recipient string `json:"recipient"`
	Channel   string `json:"channel"`
	Status    string `json:"status"`
}

// IncidentAnalyzer is the detection agent.
type IncidentAnalyzer interface {
	AnalyzeIncident(ctx context.Context, incident Incident) (*Analysis, error)
}

// ContentVerifier is the verification agent.
type ContentVerifier interface {
	VerifyContent(ctx context.Context, content string, rules []string) (*Verification, error)
}

// EventScheduler is the scheduling agent.
type EventScheduler interface {
	ScheduleEvent(ctx context.Context, spec EventSpec) (*ScheduledEvent, error)
}

// Notifier is the notification agent.
type Notifier interface {
	SendNotification(ctx context.Context, n Notification) ([]Delivery, error)
}

// Registry bundles the collaborators a workflow run needs.
type Registry struct {
	Analyzer  IncidentAnalyzer
	Verifier  ContentVerifier
	Scheduler EventScheduler
	Notifier  Notifier
}
