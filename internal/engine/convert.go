package engine

import (
	"github.com/ads-marketplace/backend/internal/mintclient"
	"github.com/ads-marketplace/backend/internal/models"
)

func toMintProofs(proofs []models.Proof) []mintclient.Proof {
	out := make([]mintclient.Proof, len(proofs))
	for i, p := range proofs {
		out[i] = mintclient.Proof{
			Amount:  uint64(p.Amount),
			ID:      p.ProofID,
			Secret:  p.Secret,
			C:       p.C,
			DLEQ:    p.DLEQ,
			Witness: p.Witness,
		}
	}
	return out
}

func fromMintProof(walletID int64, status string, p mintclient.Proof) models.Proof {
	return models.Proof{
		WalletID: walletID,
		ProofID:  p.ID,
		Amount:   int64(p.Amount),
		Secret:   p.Secret,
		C:        p.C,
		DLEQ:     p.DLEQ,
		Witness:  p.Witness,
		Status:   status,
	}
}

func fromMintProofsList(walletID int64, proofs []mintclient.Proof, status string) []models.Proof {
	out := make([]models.Proof, len(proofs))
	for i, p := range proofs {
		out[i] = fromMintProof(walletID, status, p)
	}
	return out
}

func secretsOf(proofs []mintclient.Proof) []string {
	out := make([]string, len(proofs))
	for i, p := range proofs {
		out[i] = p.Secret
	}
	return out
}
