package domain

// Subject is the authenticated end-user (or the client itself for
// client_credentials) a token is issued for.
type Subject struct {
	ID     string         `json:"id"`
	Scope  string         `json:"scope,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

// FlowState carries an authorization request across the HTTP round trips of
// the login dialog and federated login. It is keyed by ID and kept by a
// FlowStore; nothing in it depends on the transport.
type FlowState struct {
	ID         string `json:"id"`
	AuthCodeID string `json:"auth_code_id,omitempty"`

	// Subject is set once the end-user has logged in.
	Subject *Subject `json:"subject,omitempty"`

	// Federated login
	StrategyID       string `json:"strategy_id,omitempty"`
	StrategyState    string `json:"strategy_state,omitempty"`
	StrategyVerifier string `json:"strategy_verifier,omitempty"`

	// Error is the last login error shown on the dialog.
	Error string `json:"error,omitempty"`
}
