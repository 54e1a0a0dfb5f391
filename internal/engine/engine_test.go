package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/apperr"
	"github.com/ads-marketplace/backend/internal/mintclient"
	"github.com/ads-marketplace/backend/internal/models"
)

func newTestEngine(t *testing.T, mint mintclient.Client) (*Engine, *memStore) {
	t.Helper()
	st := newMemStore()
	e := New(st, mint, nil, nil, zap.NewNop())
	return e, st
}

func seedWallet(t *testing.T, st *memStore, unspent ...models.Proof) *models.Wallet {
	t.Helper()
	w := &models.Wallet{AccessKey: "testkey", MintURL: "https://mint.example", Unit: models.UnitSat}
	if err := st.CreateWallet(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	if len(unspent) > 0 {
		if err := st.InsertProofs(context.Background(), w.ID, unspent, models.ProofStatusUnspent); err != nil {
			t.Fatal(err)
		}
	}
	return w
}

func TestSendProofsHappyPath(t *testing.T) {
	mint := &fakeMint{
		swapFunc: func(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error) {
			if !includeFees {
				t.Error("sendProofs must request includeFees=true")
			}
			return &mintclient.SwapResult{
				Keep: []mintclient.Proof{{Amount: 40, ID: "k", Secret: "keep-1", C: "c"}},
				Send: []mintclient.Proof{{Amount: 60, ID: "k", Secret: "send-1", C: "c"}},
			}, nil
		},
	}
	e, st := newTestEngine(t, mint)
	w := seedWallet(t, st, models.Proof{Amount: 100, Secret: "in-1", ProofID: "k", C: "c"})

	keep, send, err := e.SendProofs(context.Background(), w, 60, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keep) != 1 || keep[0].Secret != "keep-1" {
		t.Errorf("keep = %+v", keep)
	}
	if len(send) != 1 || send[0].Secret != "send-1" {
		t.Errorf("send = %+v", send)
	}

	unspent, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusUnspent)
	if len(unspent) != 1 || unspent[0].Secret != "keep-1" {
		t.Errorf("expected only keep-1 UNSPENT, got %+v", unspent)
	}
	pending, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusPending)
	if len(pending) != 1 || pending[0].Secret != "send-1" {
		t.Errorf("expected send-1 PENDING, got %+v", pending)
	}
	spent, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusSpent)
	if len(spent) != 1 || spent[0].Secret != "in-1" {
		t.Errorf("expected in-1 SPENT, got %+v", spent)
	}
}

func TestSendProofsReappearingInputStaysTracked(t *testing.T) {
	// The mint returns the original input unchanged as the send piece.
	// The engine must flip its existing row to PENDING, not insert a
	// duplicate with the same secret.
	mint := &fakeMint{
		swapFunc: func(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error) {
			return &mintclient.SwapResult{
				Send: []mintclient.Proof{{Amount: 100, ID: "k", Secret: "in-1", C: "c"}},
			}, nil
		},
	}
	e, st := newTestEngine(t, mint)
	w := seedWallet(t, st, models.Proof{Amount: 100, Secret: "in-1", ProofID: "k", C: "c"})

	_, send, err := e.SendProofs(context.Background(), w, 100, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(send) != 1 || send[0].Secret != "in-1" {
		t.Errorf("send = %+v", send)
	}

	pending, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusPending)
	if len(pending) != 1 {
		t.Fatalf("expected exactly one pending row, got %d", len(pending))
	}
	if pending[0].Secret != "in-1" {
		t.Errorf("pending secret = %q, want in-1", pending[0].Secret)
	}
}

func TestSendProofsInsufficientBalance(t *testing.T) {
	e, st := newTestEngine(t, &fakeMint{})
	w := seedWallet(t, st, models.Proof{Amount: 10, Secret: "in-1", ProofID: "k", C: "c"})

	_, _, err := e.SendProofs(context.Background(), w, 100, "")
	if err == nil {
		t.Fatal("expected insufficient balance error")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.Validation {
		t.Errorf("expected validation AppError, got %v", err)
	}
}

func TestSendProofsWithP2PKLocksOutputConfig(t *testing.T) {
	var gotConfig *mintclient.OutputConfig
	mint := &fakeMint{
		swapFunc: func(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error) {
			gotConfig = outputConfig
			return &mintclient.SwapResult{
				Send: []mintclient.Proof{{Amount: 100, ID: "k", Secret: "send-locked", C: "c"}},
			}, nil
		},
	}
	e, st := newTestEngine(t, mint)
	w := seedWallet(t, st, models.Proof{Amount: 100, Secret: "in-1", ProofID: "k", C: "c"})

	xOnly := "1111111111111111111111111111111111111111111111111111111111111111"
	_, _, err := e.SendProofs(context.Background(), w, 100, xOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotConfig == nil || gotConfig.Send == nil {
		t.Fatal("expected output config with P2PK lock")
	}
	if gotConfig.Send.Options.Pubkey != "02"+xOnly {
		t.Errorf("pubkey = %q", gotConfig.Send.Options.Pubkey)
	}
}

func TestMeltProofsSuccessPath(t *testing.T) {
	mint := &fakeMint{
		swapFunc: func(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error) {
			if includeFees {
				t.Error("meltProofs must request includeFees=false")
			}
			return &mintclient.SwapResult{
				Send: []mintclient.Proof{{Amount: 102, ID: "k", Secret: "melt-send", C: "c"}},
			}, nil
		},
		meltFunc: func(ctx context.Context, mintURL string, quote *mintclient.MeltQuote, inputs []mintclient.Proof) (*mintclient.MeltQuote, []mintclient.Proof, error) {
			return &mintclient.MeltQuote{Quote: quote.Quote, State: mintclient.MeltQuotePaid}, nil, nil
		},
	}
	e, st := newTestEngine(t, mint)
	w := seedWallet(t, st, models.Proof{Amount: 102, Secret: "in-1", ProofID: "k", C: "c"})

	quote := &mintclient.MeltQuote{Quote: "mq1", Amount: 100, FeeReserve: 2}
	outcome, err := e.MeltProofs(context.Background(), w, quote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Quote.State != mintclient.MeltQuotePaid {
		t.Errorf("state = %v", outcome.Quote.State)
	}

	spent, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusSpent)
	spentSet := models.SecretSet(spent)
	_, inSpent := spentSet["in-1"]
	_, sendSpent := spentSet["melt-send"]
	if len(spent) != 2 || !inSpent || !sendSpent {
		t.Errorf("expected swapped in-1 and melt-send SPENT, got %+v", spent)
	}
}

func TestMeltProofsNetworkErrorThenPendingRecheck(t *testing.T) {
	mint := &fakeMint{
		swapFunc: func(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error) {
			return &mintclient.SwapResult{
				Send: []mintclient.Proof{{Amount: 102, ID: "k", Secret: "melt-send", C: "c"}},
			}, nil
		},
		meltFunc: func(ctx context.Context, mintURL string, quote *mintclient.MeltQuote, inputs []mintclient.Proof) (*mintclient.MeltQuote, []mintclient.Proof, error) {
			return nil, nil, errConnRefused
		},
		checkMeltFunc: func(ctx context.Context, mintURL string, quoteID string) (*mintclient.MeltQuote, error) {
			return &mintclient.MeltQuote{Quote: quoteID, State: mintclient.MeltQuotePending}, nil
		},
	}
	e, st := newTestEngine(t, mint)
	w := seedWallet(t, st, models.Proof{Amount: 102, Secret: "in-1", ProofID: "k", C: "c"})

	quote := &mintclient.MeltQuote{Quote: "mq1", Amount: 100, FeeReserve: 2}
	_, err := e.MeltProofs(context.Background(), w, quote)
	if err == nil {
		t.Fatal("expected timeout-pending error")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.StatusCode != 202 || ae.Kind != apperr.Timeout {
		t.Errorf("expected 202 timeout AppError, got %v", err)
	}

	pending, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusPending)
	if len(pending) != 1 || pending[0].Secret != "melt-send" {
		t.Errorf("expected melt-send to remain PENDING, got %+v", pending)
	}
}

func TestMeltProofsAlreadySpentTriggersReconcileAndConnectionError(t *testing.T) {
	checkStateCalled := false
	mint := &fakeMint{
		swapFunc: func(ctx context.Context, mintURL string, amount uint64, inputs []mintclient.Proof, includeFees bool, outputConfig *mintclient.OutputConfig) (*mintclient.SwapResult, error) {
			return &mintclient.SwapResult{
				Send: []mintclient.Proof{{Amount: 102, ID: "k", Secret: "melt-send", C: "c"}},
			}, nil
		},
		meltFunc: func(ctx context.Context, mintURL string, quote *mintclient.MeltQuote, inputs []mintclient.Proof) (*mintclient.MeltQuote, []mintclient.Proof, error) {
			return nil, nil, &mintclient.OperationError{Code: mintclient.ErrCodeTokenAlreadySpent, Detail: "token already spent"}
		},
		checkMeltFunc: func(ctx context.Context, mintURL string, quoteID string) (*mintclient.MeltQuote, error) {
			return &mintclient.MeltQuote{Quote: quoteID, State: mintclient.MeltQuoteUnpaid}, nil
		},
		checkStateFunc: func(ctx context.Context, mintURL string, ys []string) ([]mintclient.ProofState, error) {
			checkStateCalled = true
			states := make([]mintclient.ProofState, len(ys))
			for i := range ys {
				states[i] = mintclient.ProofStateSpent
			}
			return states, nil
		},
	}
	e, st := newTestEngine(t, mint)
	w := seedWallet(t, st, models.Proof{Amount: 102, Secret: "in-1", ProofID: "k", C: "c"})

	quote := &mintclient.MeltQuote{Quote: "mq1", Amount: 100, FeeReserve: 2}
	_, err := e.MeltProofs(context.Background(), w, quote)
	if err == nil {
		t.Fatal("expected connection-kind error")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.StatusCode != 500 || ae.Kind != apperr.Connection {
		t.Errorf("expected 500 connection AppError, got %v", err)
	}
	if !checkStateCalled {
		t.Error("expected reconcileWithMint to run on the 11001 branch")
	}

	spent, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusSpent)
	spentSet := models.SecretSet(spent)
	_, inSpent := spentSet["in-1"]
	_, sendSpent := spentSet["melt-send"]
	if len(spent) != 2 || !inSpent || !sendSpent {
		t.Errorf("expected swapped in-1 and melt-send SPENT after reconciliation, got %+v", spent)
	}
}

func TestReconcileWithMintMixedStates(t *testing.T) {
	mint := &fakeMint{
		checkStateFunc: func(ctx context.Context, mintURL string, ys []string) ([]mintclient.ProofState, error) {
			out := make([]mintclient.ProofState, len(ys))
			for i, y := range ys {
				switch y {
				case "spent-1":
					out[i] = mintclient.ProofStateSpent
				case "unspent-1":
					out[i] = mintclient.ProofStateUnspent
				default:
					out[i] = mintclient.ProofStatePending
				}
			}
			return out, nil
		},
	}
	e, st := newTestEngine(t, mint)
	w := seedWallet(t, st)
	if err := st.InsertProofs(context.Background(), w.ID, []models.Proof{
		{Amount: 10, Secret: "spent-1", ProofID: "k", C: "c"},
		{Amount: 10, Secret: "unspent-1", ProofID: "k", C: "c"},
		{Amount: 10, Secret: "still-pending-1", ProofID: "k", C: "c"},
	}, models.ProofStatusPending); err != nil {
		t.Fatal(err)
	}

	result, err := e.ReconcileWithMint(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Spent != 1 || result.Unspent != 1 || result.Pending != 1 {
		t.Errorf("result = %+v", result)
	}

	pending, _ := st.ListProofs(context.Background(), w.ID, models.ProofStatusPending)
	if len(pending) != 1 || pending[0].Secret != "still-pending-1" {
		t.Errorf("pending = %+v", pending)
	}
}

type connRefusedErr struct{}

func (connRefusedErr) Error() string { return "connection refused" }

var errConnRefused = connRefusedErr{}
