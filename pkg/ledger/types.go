package ledger

import "time"

// Claim is one unreimbursed gas expenditure the relayer incurred while
// submitting a message or consensus update to a destination chain
// (spec.md §6: "transaction-payment ledger ... external collaborator").
type Claim struct {
	ID                 int64     `json:"id"`
	StateMachine        string    `json:"stateMachine"` // destination StateMachine.ID(), e.g. "EVM(1)"
	Nonce               uint64    `json:"nonce"`
	GasUsed             uint64    `json:"gasUsed"`
	MessageCommitments  [][32]byte `json:"messageCommitments"`
	SubmittedAt         time.Time `json:"submittedAt"`
	Reimbursed          bool      `json:"reimbursed"`
	ReimbursedAt        *time.Time `json:"reimbursedAt,omitempty"`
	ReimbursementTxHash string    `json:"reimbursementTxHash,omitempty"`
}
