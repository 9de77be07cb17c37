// Package workflow sequences the detect/verify/schedule/notify pipeline
// for one incident. Every step runs under its own scoped credential,
// consent-gated steps are skipped without a grant, and a single step
// failure never aborts the remaining steps.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/beaconops/vigil/pkg/agents"
	"github.com/beaconops/vigil/pkg/audit"
	"github.com/beaconops/vigil/pkg/consent"
	"github.com/beaconops/vigil/pkg/delegation"
	"github.com/beaconops/vigil/pkg/token"
)

// ErrValidation marks a malformed top-level request. It is the only
// error that aborts a run before any step executes.
var ErrValidation = errors.New("invalid workflow request")

const (
	orchestratorID = "agent.coordinator"

	// directTTL bounds directly issued step credentials.
	directTTL = 60 * time.Minute
	// defaultStepTimeout bounds each collaborator call.
	defaultStepTimeout = 10 * time.Second
)

// stepSpec fixes one pipeline step: which agent runs it, under which
// scopes, and whether it acts on behalf of the user (consent-gated).
type stepSpec struct {
	name         string
	agentID      string
	agentType    token.AgentType
	scopes       []string
	consentGated bool
}

// pipeline is the fixed step order for every run.
var pipeline = []stepSpec{
	{name: "detect", agentID: "agent.detection", agentType: token.AgentDetection,
		scopes: []string{"incident.read", "alerts.analyze"}},
	{name: "verify", agentID: "agent.verification", agentType: token.AgentVerification,
		scopes: []string{"content.read", "content.verify"}},
	{name: "schedule", agentID: "agent.scheduling", agentType: token.AgentScheduling,
		scopes: []string{"calendar.write"}, consentGated: true},
	{name: "notify", agentID: "agent.notification", agentType: token.AgentNotification,
		scopes: []string{"notify.send"}, consentGated: true},
}

// Orchestrator coordinates one workflow run end to end: credential
// minting, delegation validation, consent gating, collaborator calls,
// and status aggregation, with an audit event per step transition.
type Orchestrator struct {
	tokens      *token.Service
	consents    *consent.Manager
	chains      *delegation.Validator
	auditLog    audit.Logger
	registry    agents.Registry
	bus         *Bus
	stepTimeout time.Duration
	clock       func() time.Time
	tracer      trace.Tracer
}

// NewOrchestrator wires the orchestrator. The bus may be shared with
// external subscribers; pass nil to run without one.
func NewOrchestrator(tokens *token.Service, consents *consent.Manager, chains *delegation.Validator, auditLog audit.Logger, registry agents.Registry, bus *Bus) *Orchestrator {
	if bus == nil {
		bus = NewBus()
	}
	return &Orchestrator{
		tokens:      tokens,
		consents:    consents,
		chains:      chains,
		auditLog:    auditLog,
		registry:    registry,
		bus:         bus,
		stepTimeout: defaultStepTimeout,
		clock:       time.Now,
		tracer:      otel.Tracer("vigil/workflow"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// WithStepTimeout overrides the per-collaborator-call timeout.
func (o *Orchestrator) WithStepTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.stepTimeout = d
	}
	return o
}

// Bus returns the event bus step transitions are published on.
func (o *Orchestrator) Bus() *Bus {
	return o.bus
}

// runState carries per-run mutable context between steps.
type runState struct {
	req      Request
	exec     *Execution
	analysis *agents.Analysis
	verified *agents.Verification
}

// Execute runs the fixed pipeline for one incident. Steps are
// best-effort and sequential; the only abort is a malformed request.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Execution, error) {
	if req.TargetIncident == "" {
		return nil, fmt.Errorf("%w: target incident is required", ErrValidation)
	}
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.New().String()
	}

	ctx, span := o.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", req.WorkflowID),
			attribute.String("workflow.incident", req.TargetIncident),
		))
	defer span.End()

	started := o.clock()
	state := &runState{
		req: req,
		exec: &Execution{
			ID:                 req.WorkflowID,
			Status:             StatusRunning,
			AgentResults:       make(map[string]any),
			ConsentValidations: []ConsentCheck{},
			Communications:     []Communication{},
			StartedAt:          started.UTC(),
		},
	}

	for _, spec := range pipeline {
		o.runStep(ctx, state, spec)
	}

	state.exec.Status = AggregateStatus(state.exec.Steps)
	state.exec.ExecutionTimeMS = o.clock().Sub(started).Milliseconds()
	span.SetAttributes(attribute.String("workflow.status", string(state.exec.Status)))
	return state.exec, nil
}

func (o *Orchestrator) runStep(ctx context.Context, state *runState, spec stepSpec) {
	ctx, span := o.tracer.Start(ctx, "workflow.step."+spec.name,
		trace.WithAttributes(attribute.String("step.agent", spec.agentID)))
	defer span.End()

	step := StepResult{Name: spec.name, Agent: spec.agentID, Status: StepRunning}
	o.publish(state.exec.ID, step)

	credRef := ""
	finish := func(status StepStatus, output any, err error) {
		step.Status = status
		step.Output = output
		result := audit.ResultSuccess
		if err != nil {
			step.Error = err.Error()
		}
		if status == StepFailed {
			result = audit.ResultFailure
		}

		state.exec.Steps = append(state.exec.Steps, step)
		if output != nil {
			state.exec.AgentResults[spec.name] = output
		}

		// One communication entry per step, even on failure or skip.
		state.exec.Communications = append(state.exec.Communications, Communication{
			From:          orchestratorID,
			To:            spec.agentID,
			Action:        spec.name,
			DataDigest:    digest(output),
			CredentialRef: credRef,
			Timestamp:     o.clock().UTC(),
		})

		details := map[string]any{
			"workflow_id": state.exec.ID,
			"step_status": string(status),
		}
		if credRef != "" {
			details["credential_ref"] = credRef
		}
		if step.Error != "" {
			details["error"] = step.Error
		}
		o.auditLog.Record(ctx, spec.agentID, spec.name, state.req.TargetIncident, result, details)

		span.SetAttributes(attribute.String("step.status", string(status)))
		o.publish(state.exec.ID, step)
	}

	if !requested(state.req.RequestedActions, spec.name) {
		finish(StepSkipped, nil, errors.New("not requested"))
		return
	}

	// Consent gate: user-facing steps never run without the user's grant.
	if spec.consentGated && !state.req.ConsentGranted {
		state.exec.ConsentValidations = append(state.exec.ConsentValidations, ConsentCheck{
			Step: spec.name, Required: true, Granted: false,
		})
		finish(StepSkipped, nil, errors.New("consent not granted"))
		return
	}

	raw, claims, consentID, err := o.mintCredential(ctx, state, spec)
	if err != nil {
		// A consent record may exist even when nothing was grantable;
		// the execution record must mirror the stored consent trail.
		if consentID != "" {
			state.exec.ConsentValidations = append(state.exec.ConsentValidations, ConsentCheck{
				Step: spec.name, Required: true, Granted: false, ConsentID: consentID,
			})
		}
		finish(StepFailed, nil, err)
		return
	}
	credRef = redactCredential(raw)

	chain, err := o.chains.ValidateChain(raw)
	if err != nil {
		finish(StepFailed, nil, err)
		return
	}

	// Chain validity says the credential is well-formed; the underlying
	// consent must additionally still be live at point of use.
	if chain.Delegated() && !o.consents.IsActive(ctx, chain.ConsentID()) {
		finish(StepFailed, nil, fmt.Errorf("%w: consent %s is not active", token.ErrAuthorization, chain.ConsentID()))
		return
	}
	if !token.VerifyScopes(spec.scopes, claims.Scopes()) {
		finish(StepFailed, nil, fmt.Errorf("%w: credential lacks required scopes %v", token.ErrAuthorization, spec.scopes))
		return
	}

	if consentID != "" {
		state.exec.ConsentValidations = append(state.exec.ConsentValidations, ConsentCheck{
			Step: spec.name, Required: true, Granted: true, ConsentID: consentID,
		})
	}

	output, err := o.invoke(ctx, state, spec)
	if err != nil {
		finish(StepFailed, nil, err)
		return
	}
	finish(StepCompleted, output, nil)
}

// mintCredential issues the step credential: direct for detect/verify,
// delegated through the consent manager for the consent-gated steps.
func (o *Orchestrator) mintCredential(ctx context.Context, state *runState, spec stepSpec) (raw string, claims *token.Claims, consentID string, err error) {
	if !spec.consentGated {
		raw, claims, err = o.tokens.Issue(spec.agentID, spec.scopes, directTTL)
		return raw, claims, "", err
	}

	grant, err := o.consents.Request(ctx, consent.Request{
		UserID:    state.req.UserID,
		Delegator: token.Agent(orchestratorID, token.AgentCoordinator),
		Delegatee: token.Agent(spec.agentID, spec.agentType),
		Scopes:    spec.scopes,
		Purpose:   fmt.Sprintf("%s step for incident %s", spec.name, state.req.TargetIncident),
	})
	if err != nil {
		return "", nil, "", fmt.Errorf("consent request failed: %w", err)
	}
	if !grant.Granted() {
		return "", nil, grant.Record.ID,
			fmt.Errorf("%w: no grantable scopes for %s", token.ErrAuthorization, spec.agentID)
	}
	return grant.Credential, grant.Claims, grant.Record.ID, nil
}

// invoke calls the collaborator behind the step under a bounded timeout.
// Earlier step outputs feed later steps' inputs.
func (o *Orchestrator) invoke(ctx context.Context, state *runState, spec stepSpec) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	switch spec.name {
	case "detect":
		if o.registry.Analyzer == nil {
			return nil, fmt.Errorf("%w: no incident analyzer configured", agents.ErrExternalService)
		}
		analysis, err := o.registry.Analyzer.AnalyzeIncident(ctx, agents.Incident{
			ID:         state.req.TargetIncident,
			ReportedAt: state.exec.StartedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", agents.ErrExternalService, err)
		}
		state.analysis = analysis
		return analysis, nil

	case "verify":
		if o.registry.Verifier == nil {
			return nil, fmt.Errorf("%w: no content verifier configured", agents.ErrExternalService)
		}
		content := state.req.TargetIncident
		if state.analysis != nil {
			content = state.analysis.Summary
		}
		verification, err := o.registry.Verifier.VerifyContent(ctx, content, []string{"no_pii", "no_prompt_injection"})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", agents.ErrExternalService, err)
		}
		state.verified = verification
		return verification, nil

	case "schedule":
		if o.registry.Scheduler == nil {
			return nil, fmt.Errorf("%w: no event scheduler configured", agents.ErrExternalService)
		}
		start := o.clock().UTC().Add(15 * time.Minute)
		event, err := o.registry.Scheduler.ScheduleEvent(ctx, agents.EventSpec{
			Title:     fmt.Sprintf("Emergency response: %s", state.req.TargetIncident),
			Start:     start,
			End:       start.Add(30 * time.Minute),
			Attendees: []string{state.req.UserID},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", agents.ErrExternalService, err)
		}
		return event, nil

	case "notify":
		if o.registry.Notifier == nil {
			return nil, fmt.Errorf("%w: no notifier configured", agents.ErrExternalService)
		}
		message := fmt.Sprintf("Emergency workflow update for incident %s", state.req.TargetIncident)
		if state.analysis != nil {
			message = state.analysis.Summary
		}
		deliveries, err := o.registry.Notifier.SendNotification(ctx, agents.Notification{
			Channel:    "sms",
			Recipients: []string{state.req.UserID},
			Message:    message,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", agents.ErrExternalService, err)
		}
		return deliveries, nil
	}

	return nil, fmt.Errorf("unknown step %q", spec.name)
}

func (o *Orchestrator) publish(workflowID string, step StepResult) {
	o.bus.Publish(StepEvent{
		WorkflowID: workflowID,
		Step:       step,
		Timestamp:  o.clock().UTC(),
	})
}

// requested reports whether the step was asked for. An empty action list
// requests the whole pipeline.
func requested(actions []string, step string) bool {
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		if a == step {
			return true
		}
	}
	return false
}
