// Package audit emits the tamper-evident trail of every credential use.
// The sink is append-only and synchronous, and a sink failure never fails
// the calling operation: write errors surface only on the diagnostic log.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result classifies the outcome of the audited action.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents one structured audit record.
type Event struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Result    string         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Logger defines the interface for recording audit events.
// Record must not fail the caller under any circumstance.
type Logger interface {
	Record(ctx context.Context, actor, action, resource, result string, details map[string]any)
}

// logger writes structured JSON lines to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	diag   *slog.Logger
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{
		writer: w,
		diag:   slog.Default().With("component", "audit"),
	}
}

func (l *logger) Record(ctx context.Context, actor, action, resource, result string, details map[string]any) {
	event := Event{
		ID:        uuid.New().String(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Result:    result,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		l.diag.ErrorContext(ctx, "audit event marshal failed", "action", action, "error", err)
		return
	}
	// Prefix with AUDIT: for easy filtering
	if _, err := l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...)); err != nil {
		l.diag.ErrorContext(ctx, "audit sink write failed", "action", action, "error", err)
	}
}
