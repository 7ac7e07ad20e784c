package models

// Answer is the final, validated response. Every factual statement in
// Content carries a [index] marker resolving to one Citation; citations may
// only reference evidence produced during the same run.
type Answer struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	FollowUps []string   `json:"follow_ups,omitempty"`
}

// Citation is a typed, indexed reference from answer content to one
// evidence item (a tool result or a RAG chunk).
type Citation struct {
	Index        int64  `json:"index"`
	EvidenceID   string `json:"evidence_id"`
	EvidenceType string `json:"evidence_type"`
	Label        string `json:"label,omitempty"`
}
