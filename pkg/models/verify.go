package models

// Evidence types admissible in checks and citations.
const (
	EvidenceTypeToolResult = "tool_result"
	EvidenceTypeChunk      = "chunk"
)

// EvidenceCheck is one structural verification: a claim about the run and
// whether the collected evidence supports it.
type EvidenceCheck struct {
	Claim        string `json:"claim"`
	Supported    bool   `json:"supported"`
	EvidenceID   string `json:"evidence_id,omitempty"`
	EvidenceType string `json:"evidence_type,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// VerifierReport is the verifier's verdict over a run's tool executions.
// Summary is populated only when Approved is false.
type VerifierReport struct {
	Approved         bool            `json:"approved"`
	Checks           []EvidenceCheck `json:"checks"`
	Summary          string          `json:"summary,omitempty"`
	SuggestedActions []string        `json:"suggested_actions,omitempty"`
}
