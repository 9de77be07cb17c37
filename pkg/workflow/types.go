package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Status is the terminal-state machine of a workflow run:
// pending -> running -> {completed | failed | partial}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPartial   Status = "partial"
)

// StepStatus is the per-step state machine:
// pending -> running -> {completed | failed | skipped}.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Request is the API-boundary input for one workflow run.
type Request struct {
	WorkflowID       string   `json:"workflow_id"`
	UserID           string   `json:"user_id"`
	TargetIncident   string   `json:"target_incident"`
	ConsentGranted   bool     `json:"consent_granted"`
	RequestedActions []string `json:"requested_actions,omitempty"`
}

// StepResult is the outcome of one pipeline step.
type StepResult struct {
	Name   string     `json:"step_name"`
	Agent  string     `json:"agent"`
	Status StepStatus `json:"status"`
	Output any        `json:"output,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Communication records one agent interaction. The full credential is
// never persisted; CredentialRef is a truncated reference for audit
// correlation only.
type Communication struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Action        string    `json:"action"`
	DataDigest    string    `json:"data_digest"`
	CredentialRef string    `json:"credential_ref"`
	Timestamp     time.Time `json:"timestamp"`
}

// ConsentCheck records one consent gate evaluation.
type ConsentCheck struct {
	Step      string `json:"step"`
	Required  bool   `json:"required"`
	Granted   bool   `json:"granted"`
	ConsentID string `json:"consent_id,omitempty"`
}

// Execution aggregates one end-to-end workflow run.
type Execution struct {
	ID                 string          `json:"workflow_id"`
	Status             Status          `json:"status"`
	Steps              []StepResult    `json:"steps"`
	Communications     []Communication `json:"communications"`
	ConsentValidations []ConsentCheck  `json:"consent_validations"`
	AgentResults       map[string]any  `json:"agent_results"`
	StartedAt          time.Time       `json:"started_at"`
	ExecutionTimeMS    int64           `json:"execution_time_ms"`
}

// redactCredential truncates a raw credential to an audit reference.
func redactCredential(raw string) string {
	if raw == "" {
		return ""
	}
	const keep = 12
	if len(raw) <= keep {
		return raw + "…"
	}
	return raw[:keep] + "…"
}

// digest computes the sha256 content hash of a payload for the
// communication log.
func digest(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
