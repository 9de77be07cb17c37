package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/beaconops/vigil/pkg/consent"
	"github.com/beaconops/vigil/pkg/token"
	"github.com/beaconops/vigil/pkg/workflow"
)

// Server exposes workflow orchestration and consent management over HTTP.
type Server struct {
	orchestrator *workflow.Orchestrator
	consents     *consent.Manager
	requester    func(*http.Request) string
	log          *slog.Logger
}

// NewServer creates the HTTP surface over the orchestrator and consent
// manager.
func NewServer(orchestrator *workflow.Orchestrator, consents *consent.Manager) *Server {
	return &Server{
		orchestrator: orchestrator,
		consents:     consents,
		requester:    func(*http.Request) string { return "anonymous" },
		log:          slog.Default().With("component", "api"),
	}
}

// WithRequesterFunc sets how the revoking principal is resolved from a
// request. The auth middleware supplies this at wiring time to avoid an
// import cycle with the error writers.
func (s *Server) WithRequesterFunc(fn func(*http.Request) string) *Server {
	if fn != nil {
		s.requester = fn
	}
	return s
}

// Routes returns the request multiplexer for all endpoints.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/workflows", s.handleExecuteWorkflow)
	mux.HandleFunc("POST /api/consents", s.handleRequestConsent)
	mux.HandleFunc("GET /api/consents/{id}", s.handleGetConsent)
	mux.HandleFunc("DELETE /api/consents/{id}", s.handleRevokeConsent)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req workflow.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	exec, err := s.orchestrator.Execute(r.Context(), req)
	if err != nil {
		if errors.Is(err, workflow.ErrValidation) {
			WriteBadRequest(w, err.Error())
			return
		}
		WriteInternal(w, err)
		return
	}
	s.log.InfoContext(r.Context(), "workflow executed",
		"workflow_id", exec.ID, "status", exec.Status, "duration_ms", exec.ExecutionTimeMS)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(exec)
}

// ConsentRequest is the request body for POST /api/consents.
type ConsentRequest struct {
	UserID         string   `json:"user_id"`
	DelegateeAgent string   `json:"delegatee_agent"`
	DelegateeType  string   `json:"delegatee_type"`
	Scopes         []string `json:"scopes"`
	Purpose        string   `json:"purpose"`
	TTLSeconds     int      `json:"ttl_seconds,omitempty"`
}

// ConsentResponse is the response body for POST /api/consents. The
// delegated credential is returned once at grant time and never again.
type ConsentResponse struct {
	ConsentID           string    `json:"consent_id"`
	Granted             bool      `json:"granted"`
	GrantedScopes       []string  `json:"granted_scopes"`
	ExpiresAt           time.Time `json:"expires_at"`
	DelegatedCredential string    `json:"delegated_credential,omitempty"`
}

func (s *Server) handleRequestConsent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.UserID == "" || req.DelegateeAgent == "" {
		WriteBadRequest(w, "Missing required fields: user_id, delegatee_agent")
		return
	}

	grant, err := s.consents.Request(r.Context(), consent.Request{
		UserID:    req.UserID,
		Delegator: token.Human(req.UserID),
		Delegatee: token.Agent(req.DelegateeAgent, token.AgentType(req.DelegateeType)),
		Scopes:    req.Scopes,
		Purpose:   req.Purpose,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		WriteInternal(w, err)
		return
	}

	resp := ConsentResponse{
		ConsentID:           grant.Record.ID,
		Granted:             grant.Granted(),
		GrantedScopes:       grant.Record.Scopes,
		ExpiresAt:           grant.Record.ExpiresAt,
		DelegatedCredential: grant.Credential,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.consents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, consent.ErrNotFound) {
			WriteNotFound(w, "Unknown consent id")
			return
		}
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	// Revocation is idempotent: unknown and already-revoked ids succeed.
	// A false return means the store failed and the consent may still be
	// live, so the caller must see an error and retry.
	if !s.consents.Revoke(r.Context(), r.PathValue("id"), s.requester(r)) {
		WriteInternal(w, fmt.Errorf("consent revoke failed: %s", r.PathValue("id")))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"consent_id": r.PathValue("id"),
		"revoked":    true,
	})
}
