package main

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beaconops/vigil/pkg/agents"
)

// Demo collaborators: real orchestration, fake world. They stand in for
// the external detection, verification, scheduling and notification
// services so a fresh checkout can run end to end with no external
// connections.

type demoAnalyzer struct{}

var severityKeywords = map[string]string{
	"fire":     "critical",
	"flood":    "high",
	"outage":   "high",
	"accident": "medium",
}

func (demoAnalyzer) AnalyzeIncident(_ context.Context, incident agents.Incident) (*agents.Analysis, error) {
	severity := "low"
	score := 0.25
	desc := strings.ToLower(incident.ID + " " + incident.Description)
	for keyword, s := range severityKeywords {
		if strings.Contains(desc, keyword) {
			severity = s
			score = 0.8
			break
		}
	}
	return &agents.Analysis{
		IncidentID: incident.ID,
		RiskScore:  score,
		Severity:   severity,
		Summary:    "automated triage of reported incident",
	}, nil
}

type demoVerifier struct{}

func (demoVerifier) VerifyContent(_ context.Context, content string, rules []string) (*agents.Verification, error) {
	return &agents.Verification{
		Verified:  content != "",
		RiskScore: 0.1,
		Checks:    rules,
	}, nil
}

type demoScheduler struct{}

func (demoScheduler) ScheduleEvent(_ context.Context, spec agents.EventSpec) (*agents.ScheduledEvent, error) {
	start := spec.Start
	if start.IsZero() {
		start = time.Now().Add(15 * time.Minute)
	}
	end := spec.End
	if end.IsZero() {
		end = start.Add(time.Hour)
	}
	return &agents.ScheduledEvent{
		EventID: uuid.New().String(),
		Start:   start,
		End:     end,
	}, nil
}

type demoNotifier struct{}

func (demoNotifier) SendNotification(_ context.Context, n agents.Notification) ([]agents.Delivery, error) {
	recipients := n.Recipients
	if len(recipients) == 0 {
		recipients = []string{"on-call"}
	}
	deliveries := make([]agents.Delivery, 0, len(recipients))
	for _, r := range recipients {
		deliveries = append(deliveries, agents.Delivery{
			Recipient: r,
			Channel:   n.Channel,
			Status:    "sent",
		})
	}
	return deliveries, nil
}

func demoRegistry() agents.Registry {
	return agents.Registry{
		Analyzer:  demoAnalyzer{},
		Verifier:  demoVerifier{},
		Scheduler: demoScheduler{},
		Notifier:  demoNotifier{},
	}
}
