package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/certen/independant-validator/pkg/database"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// Store is the transaction-payment ledger's external-collaborator
// interface (spec.md §6): every gas-paying submission records a Claim
// here, and a reimbursement process periodically drains
// QueryUnreimbursed. Grounded on pkg/ledger/store.go's
// wrap-a-backing-store-and-expose-high-level-methods shape, retargeted
// from a KV abstraction to pkg/database's Postgres client since the
// ledger here is a real persisted store, not an in-memory mock.
type Store struct {
	db *database.Client
}

// NewStore wraps a database.Client with the ledger's query surface.
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// RecordSubmission records one gas-paying submission to a destination
// chain — spec.md §6's record_submission(chain, nonce, gas_used,
// message_commitments).
func (s *Store) RecordSubmission(ctx context.Context, sm statemachine.StateMachine, nonce, gasUsed uint64, commitments [][32]byte) (*Claim, error) {
	flat := make([][]byte, len(commitments))
	for i, c := range commitments {
		flat[i] = c[:]
	}

	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ledger_claims (state_machine, nonce, gas_used, message_commitments, submitted_at, reimbursed)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id
	`, sm.ID(), nonce, gasUsed, pq.Array(flat), now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("ledger: record submission: %w", err)
	}

	return &Claim{
		ID:                 id,
		StateMachine:       sm.ID(),
		Nonce:              nonce,
		GasUsed:            gasUsed,
		MessageCommitments: commitments,
		SubmittedAt:        now,
	}, nil
}

// QueryUnreimbursed returns every Claim not yet marked reimbursed —
// spec.md §6's query_unreimbursed() -> [Claim].
func (s *Store) QueryUnreimbursed(ctx context.Context) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state_machine, nonce, gas_used, message_commitments, submitted_at
		FROM ledger_claims
		WHERE reimbursed = false
		ORDER BY submitted_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger: query unreimbursed: %w", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var c Claim
		var flat [][]byte
		if err := rows.Scan(&c.ID, &c.StateMachine, &c.Nonce, &c.GasUsed, pq.Array(&flat), &c.SubmittedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan claim: %w", err)
		}
		c.MessageCommitments = make([][32]byte, len(flat))
		for i, b := range flat {
			copy(c.MessageCommitments[i][:], b)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// MarkReimbursed records that a claim's gas expenditure has been
// reimbursed by the hub, identified by the hub-side reimbursement
// transaction hash.
func (s *Store) MarkReimbursed(ctx context.Context, claimID int64, txHash string) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE ledger_claims
		SET reimbursed = true, reimbursed_at = $1, reimbursement_tx_hash = $2
		WHERE id = $3
	`, now, txHash, claimID)
	if err != nil {
		return fmt.Errorf("ledger: mark reimbursed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: mark reimbursed: %w", err)
	}
	if rows == 0 {
		return ErrClaimNotFound
	}
	return nil
}
