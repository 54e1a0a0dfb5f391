package models

import "time"

// Proof statuses
const (
	ProofStatusUnspent = "UNSPENT"
	ProofStatusPending = "PENDING"
	ProofStatusSpent   = "SPENT"
)

// ValidProofTransitions lists allowed status transitions. SPENT is
// terminal; UNSPENT<->PENDING is reversible (PENDING moves back to
// UNSPENT only when the mint shows the reservation did not settle: an
// unpaid melt, or a proof-state check that reports UNSPENT).
var ValidProofTransitions = map[string][]string{
	ProofStatusUnspent: {ProofStatusPending, ProofStatusSpent},
	ProofStatusPending: {ProofStatusUnspent, ProofStatusSpent},
	ProofStatusSpent:   {},
}

func IsValidProofTransition(from, to string) bool {
	if from == to {
		return true
	}
	allowed, ok := ValidProofTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Proof is one ecash note. Secret is the mint's double-spend key and
// this store's idempotency anchor; it is globally unique across all
// wallets, never just within one.
type Proof struct {
	ID        int64     `json:"id"`
	WalletID  int64     `json:"-"`
	ProofID   string    `json:"id_keyset"`
	Amount    int64     `json:"amount"`
	Secret    string    `json:"secret"`
	C         string    `json:"C"`
	DLEQ      *string   `json:"dleq,omitempty"`
	Witness   *string   `json:"witness,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func SumAmount(proofs []Proof) int64 {
	var total int64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

func Secrets(proofs []Proof) []string {
	secrets := make([]string, 0, len(proofs))
	for _, p := range proofs {
		secrets = append(secrets, p.Secret)
	}
	return secrets
}

func SecretSet(proofs []Proof) map[string]struct{} {
	set := make(map[string]struct{}, len(proofs))
	for _, p := range proofs {
		set[p.Secret] = struct{}{}
	}
	return set
}
