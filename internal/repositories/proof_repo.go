package repositories

import (
	"context"
	"fmt"

	"github.com/ads-marketplace/backend/internal/models"
)

func (s *PostgresStore) AggregateAmount(ctx context.Context, walletID int64, status string) (int64, error) {
	var total *int64
	err := s.q(ctx).QueryRow(ctx, `
		SELECT SUM(amount) FROM proofs WHERE wallet_id = $1 AND status = $2
	`, walletID, status).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("repositories: aggregate amount: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (s *PostgresStore) ListProofs(ctx context.Context, walletID int64, status string) ([]models.Proof, error) {
	if status == "" {
		status = models.ProofStatusUnspent
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, wallet_id, proof_id, amount, secret, c, dleq, witness, status, created_at
		FROM proofs WHERE wallet_id = $1 AND status = $2
		ORDER BY id
	`, walletID, status)
	if err != nil {
		return nil, fmt.Errorf("repositories: list proofs: %w", err)
	}
	defer rows.Close()

	var proofs []models.Proof
	for rows.Next() {
		var p models.Proof
		if err := rows.Scan(&p.ID, &p.WalletID, &p.ProofID, &p.Amount, &p.Secret, &p.C, &p.DLEQ, &p.Witness, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("repositories: scan proof: %w", err)
		}
		proofs = append(proofs, p)
	}
	return proofs, rows.Err()
}

// InsertProofs writes proofs in the given status as one transaction. If
// ctx already carries a tx (the caller is inside WithTx), the batch
// joins it; otherwise InsertProofs opens its own, so a crash partway
// through a multi-row batch can never leave some proofs inserted and
// others missing. The engine guarantees secret uniqueness before
// calling this; a duplicate secret surfaces as a unique-violation from
// Postgres rather than being silently swallowed.
func (s *PostgresStore) InsertProofs(ctx context.Context, walletID int64, proofs []models.Proof, status string) error {
	if len(proofs) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		for _, p := range proofs {
			_, err := q.Exec(ctx, `
				INSERT INTO proofs (wallet_id, proof_id, amount, secret, c, dleq, witness, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, walletID, p.ProofID, p.Amount, p.Secret, p.C, p.DLEQ, p.Witness, status)
			if err != nil {
				return fmt.Errorf("repositories: insert proof %s: %w", p.Secret, err)
			}
		}
		return nil
	})
}

// UpdateStatus flips every proof in secrets to status, constrained to
// walletID so one wallet's engine call can never touch another
// wallet's rows even if a secret were somehow shared between requests.
func (s *PostgresStore) UpdateStatus(ctx context.Context, walletID int64, secrets []string, status string) error {
	if len(secrets) == 0 {
		return nil
	}
	_, err := s.q(ctx).Exec(ctx, `
		UPDATE proofs SET status = $3 WHERE wallet_id = $1 AND secret = ANY($2)
	`, walletID, secrets, status)
	if err != nil {
		return fmt.Errorf("repositories: update proof status: %w", err)
	}
	return nil
}
