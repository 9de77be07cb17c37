package token

// PrincipalType distinguishes humans from automated agents.
type PrincipalType string

const (
	PrincipalHuman PrincipalType = "human"
	PrincipalAgent PrincipalType = "agent"
)

// AgentType tags the workflow role of an agent principal.
// The set is closed: one type per pipeline step.
type AgentType string

const (
	AgentDetection    AgentType = "detection"
	AgentVerification AgentType = "verification"
	AgentScheduling   AgentType = "scheduling"
	AgentNotification AgentType = "notification"
	AgentCoordinator  AgentType = "coordinator"
)

// Principal identifies an entity credentials can be issued to.
type Principal struct {
	ID        string        `json:"id"`
	Type      PrincipalType `json:"type"`
	AgentType AgentType     `json:"agent_type,omitempty"`
}

// Human returns a human principal.
func Human(id string) Principal {
	return Principal{ID: id, Type: PrincipalHuman}
}

// Agent returns an agent principal with its workflow role.
func Agent(id string, at AgentType) Principal {
	return Principal{ID: id, Type: PrincipalAgent, AgentType: at}
}
