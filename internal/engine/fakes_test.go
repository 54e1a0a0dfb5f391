package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ads-marketplace/backend/internal/mintclient"
	"github.com/ads-marketplace/backend/internal/models"
)

// memStore is an in-memory store.Store fake: the engine depends only on
// the interface, so tests never need a live Postgres.
type memStore struct {
	mu      sync.Mutex
	wallets map[int64]*models.Wallet
	proofs  map[int64]*models.Proof
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{
		wallets: make(map[int64]*models.Wallet),
		proofs:  make(map[int64]*models.Proof),
	}
}

func (s *memStore) CreateWallet(ctx context.Context, w *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	w.ID = s.nextID
	cp := *w
	s.wallets[w.ID] = &cp
	return nil
}

func (s *memStore) FindWalletByAccessKey(ctx context.Context, accessKey string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.AccessKey == accessKey {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetWallet(ctx context.Context, id int64) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (s *memStore) DeleteWallet(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wallets, id)
	return nil
}

func (s *memStore) DeleteProofsByWallet(ctx context.Context, walletID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.proofs {
		if p.WalletID == walletID {
			delete(s.proofs, id)
		}
	}
	return nil
}

func (s *memStore) TouchWalletUpdatedAt(ctx context.Context, id int64) error {
	return nil
}

func (s *memStore) AggregateAmount(ctx context.Context, walletID int64, status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, p := range s.proofs {
		if p.WalletID == walletID && p.Status == status {
			total += p.Amount
		}
	}
	return total, nil
}

func (s *memStore) ListProofs(ctx context.Context, walletID int64, status string) ([]models.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Proof
	for _, p := range s.proofs {
		if p.WalletID == walletID && p.Status == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) InsertProofs(ctx context.Context, walletID int64, proofs []models.Proof, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.proofs {
		for _, p := range proofs {
			if existing.Secret == p.Secret {
				return fmt.Errorf("duplicate secret %s", p.Secret)
			}
		}
	}
	for _, p := range proofs {
		s.nextID++
		cp := p
		cp.ID = s.nextID
		cp.WalletID = walletID
		cp.Status = status
		s.proofs[cp.ID] = &cp
	}
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, walletID int64, secrets []string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secretSet := make(map[string]struct{}, len(secrets))
	for _, sec := range secrets {
		secretSet[sec] = struct{}{}
	}
	for _, p := range s.proofs {
		if p.WalletID != walletID {
			continue
		}
		if _, ok := secretSet[p.Secret]; ok {
			p.Status = status
		}
	}
	return nil
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeMint is a scriptable mintclient.Client fake.
type fakeMint struct {
	swapFunc       func(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error)
	meltFunc       func(ctx context.Context, mintURL string, quote *mintclient.MeltQuote, inputs []mintclient.Proof) (*mintclient.MeltQuote, []mintclient.Proof, error)
	checkMeltFunc  func(ctx context.Context, mintURL string, quoteID string) (*mintclient.MeltQuote, error)
	checkStateFunc func(ctx context.Context, mintURL string, ys []string) ([]mintclient.ProofState, error)
	mintProofs     func(ctx context.Context, mintURL string, amount uint64, quoteID string) ([]mintclient.Proof, error)
}

func (f *fakeMint) CreateMintQuote(ctx context.Context, mintURL string, amount uint64, unit string) (*mintclient.MintQuote, error) {
	return &mintclient.MintQuote{Quote: "q1", Request: "lnbc1...", Amount: amount, State: mintclient.MintQuoteUnpaid}, nil
}

func (f *fakeMint) CheckMintQuote(ctx context.Context, mintURL string, quoteID string) (*mintclient.MintQuote, error) {
	return &mintclient.MintQuote{Quote: quoteID, State: mintclient.MintQuotePaid, Amount: 100}, nil
}

func (f *fakeMint) MintProofs(ctx context.Context, mintURL string, amount uint64, quoteID string) ([]mintclient.Proof, error) {
	if f.mintProofs != nil {
		return f.mintProofs(ctx, mintURL, amount, quoteID)
	}
	return []mintclient.Proof{{Amount: amount, ID: "k1", Secret: "new-" + quoteID, C: "c1"}}, nil
}

func (f *fakeMint) Swap(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error) {
	return f.swapFunc(ctx, mintURL, amount, inputs, includeFees, outputConfig)
}

func (f *fakeMint) CreateMeltQuote(ctx context.Context, mintURL string, bolt11 string, unit string) (*mintclient.MeltQuote, error) {
	return &mintclient.MeltQuote{Quote: "mq1", Amount: 100, FeeReserve: 2, State: mintclient.MeltQuoteUnpaid}, nil
}

func (f *fakeMint) CheckMeltQuote(ctx context.Context, mintURL string, quoteID string) (*mintclient.MeltQuote, error) {
	return f.checkMeltFunc(ctx, mintURL, quoteID)
}

func (f *fakeMint) MeltProofs(ctx context.Context, mintURL string, quote *mintclient.MeltQuote, inputs []mintclient.Proof) (*mintclient.MeltQuote, []mintclient.Proof, error) {
	return f.meltFunc(ctx, mintURL, quote, inputs)
}

func (f *fakeMint) CheckProofStates(ctx context.Context, mintURL string, ys []string) ([]mintclient.ProofState, error) {
	return f.checkStateFunc(ctx, mintURL, ys)
}

func (f *fakeMint) Receive(ctx context.Context, mintURL string, token string) ([]mintclient.Proof, error) {
	return []mintclient.Proof{{Amount: 50, ID: "k1", Secret: "received-" + token, C: "c2"}}, nil
}

func (f *fakeMint) DecodeToken(token string) (*mintclient.DecodedToken, error) {
	return &mintclient.DecodedToken{Mint: "https://mint.example", Proofs: []mintclient.Proof{{Secret: "tok-secret", Amount: 50}}}, nil
}

func (f *fakeMint) EncodeToken(proofs []mintclient.Proof, mintURL, unit, memo string) (string, error) {
	return "cashuAfaketoken", nil
}
