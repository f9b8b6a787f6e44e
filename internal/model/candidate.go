package model

import "time"

// CategorizationMethod tags which pipeline stage produced a categorization.
type CategorizationMethod string

// Categorization method constants.
const (
	MethodRule         CategorizationMethod = "RULE"
	MethodBankCategory CategorizationMethod = "BANK_CATEGORY"
	MethodML           CategorizationMethod = "ML"
	MethodLLM          CategorizationMethod = "LLM"
	MethodManual       CategorizationMethod = "MANUAL"
)

// CandidateStatus tracks a candidate's review lifecycle. Applied and Rejected
// are terminal.
type CandidateStatus string

// Candidate status constants.
const (
	CandidatePending  CandidateStatus = "PENDING"
	CandidateApplied  CandidateStatus = "APPLIED"
	CandidateRejected CandidateStatus = "REJECTED"
)

// CategorizationCandidate is a proposed categorization awaiting user review.
type CategorizationCandidate struct {
	CreatedAt     time.Time
	ResolvedAt    *time.Time
	ID            int64
	TransactionID string
	UserID        string
	CategoryID    int
	Method        CategorizationMethod
	Status        CandidateStatus
	Confidence    float64
	Reason        string
}
