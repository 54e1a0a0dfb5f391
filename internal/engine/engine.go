// Package engine implements the ProofEngine: the custodial wallet's
// state machine over proofs, mint quotes, and Lightning payments. It is
// the one place balance-affecting decisions get made; handlers never
// touch the store or the mint client directly.
package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/apperr"
	"github.com/ads-marketplace/backend/internal/events"
	"github.com/ads-marketplace/backend/internal/mintclient"
	"github.com/ads-marketplace/backend/internal/models"
	"github.com/ads-marketplace/backend/internal/pubkey"
	"github.com/ads-marketplace/backend/internal/repositories"
	"github.com/ads-marketplace/backend/internal/store"
)

type Engine struct {
	store     store.Store
	mint      mintclient.Client
	audit     *repositories.AuditRepo
	publisher events.Publisher
	log       *zap.Logger
	locks     *keyedMutex
}

func New(st store.Store, mint mintclient.Client, audit *repositories.AuditRepo, publisher events.Publisher, log *zap.Logger) *Engine {
	return &Engine{
		store:     st,
		mint:      mint,
		audit:     audit,
		publisher: publisher,
		log:       log,
		locks:     newKeyedMutex(),
	}
}

// DepositQuote is the shape shared by createDepositQuote and
// checkDepositQuote.
type DepositQuote struct {
	Quote   string
	Request string
	State   mintclient.MintQuoteState
	Expiry  int64
}

// MeltOutcome is the shape returned by a melt that definitively
// succeeded (including a PAID result reached via the recheck branch).
type MeltOutcome struct {
	Quote  *mintclient.MeltQuote
	Change []models.Proof
}

// ReconcileResult reports the disposition of every PENDING proof
// checked against the mint.
type ReconcileResult struct {
	Spent   int
	Pending int
	Unspent int
}

// Balance is a pure read of the UNSPENT and PENDING sums.
func (e *Engine) Balance(ctx context.Context, walletID int64) (balance, pending int64, err error) {
	balance, err = e.store.AggregateAmount(ctx, walletID, models.ProofStatusUnspent)
	if err != nil {
		return 0, 0, apperr.Databasef(err, "aggregate unspent balance")
	}
	pending, err = e.store.AggregateAmount(ctx, walletID, models.ProofStatusPending)
	if err != nil {
		return 0, 0, apperr.Databasef(err, "aggregate pending balance")
	}
	return balance, pending, nil
}

// CreateDepositQuote is a thin pass-through to the mint's bolt11
// mint-quote endpoint.
func (e *Engine) CreateDepositQuote(ctx context.Context, wallet *models.Wallet, amount int64) (*DepositQuote, error) {
	quote, err := e.mint.CreateMintQuote(ctx, wallet.MintURL, uint64(amount), wallet.Unit)
	if err != nil {
		return nil, mapMintErr(err)
	}
	return &DepositQuote{Quote: quote.Quote, Request: quote.Request, State: quote.State, Expiry: quote.Expiry}, nil
}

// CheckDepositQuote queries the mint and, if the quote has been paid,
// opportunistically mints and inserts proofs. A minting failure here is
// logged but never turns a successful quote check into an error;
// retrying is safe because the mint refuses to mint twice against the
// same quote.
func (e *Engine) CheckDepositQuote(ctx context.Context, wallet *models.Wallet, quoteID string) (*DepositQuote, error) {
	quote, err := e.mint.CheckMintQuote(ctx, wallet.MintURL, quoteID)
	if err != nil {
		return nil, mapMintErr(err)
	}

	if quote.State == mintclient.MintQuotePaid {
		e.mintOpportunistically(ctx, wallet, quote)
	}

	return &DepositQuote{Quote: quote.Quote, Request: quote.Request, State: quote.State, Expiry: quote.Expiry}, nil
}

func (e *Engine) mintOpportunistically(ctx context.Context, wallet *models.Wallet, quote *mintclient.MintQuote) {
	proofs, err := e.mint.MintProofs(ctx, wallet.MintURL, quote.Amount, quote.Quote)
	if err != nil {
		e.log.Info("opportunistic mint did not complete, caller may retry",
			zap.Int64("wallet_id", wallet.ID), zap.String("quote", quote.Quote), zap.Error(err))
		return
	}
	if len(proofs) == 0 {
		return
	}
	newProofs := fromMintProofsList(wallet.ID, proofs, models.ProofStatusUnspent)
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.store.InsertProofs(ctx, wallet.ID, newProofs, models.ProofStatusUnspent); err != nil {
			return err
		}
		return e.store.TouchWalletUpdatedAt(ctx, wallet.ID)
	})
	if err != nil {
		e.log.Error("failed to persist opportunistically minted proofs", zap.Int64("wallet_id", wallet.ID), zap.Error(err))
		return
	}
	e.auditLog(ctx, wallet.ID, "deposit_mint", "mint_quote", nil, map[string]any{"quote": quote.Quote, "amount": quote.Amount})
	e.publish(ctx, wallet.ID, events.EventDepositConfirmed, map[string]any{"quote": quote.Quote, "amount": quote.Amount})
}

// SendProofs produces a send bundle totalling amount, optionally locked
// to a P2PK pubkey, via the classify-then-persist algorithm in
// persistSwapResult.
func (e *Engine) SendProofs(ctx context.Context, wallet *models.Wallet, amount int64, p2pkPubkey string) (keep, send []models.Proof, err error) {
	unlock := e.locks.Lock(wallet.ID)
	defer unlock()

	inputs, err := e.store.ListProofs(ctx, wallet.ID, models.ProofStatusUnspent)
	if err != nil {
		return nil, nil, apperr.Databasef(err, "list unspent proofs")
	}
	if models.SumAmount(inputs) < amount {
		return nil, nil, apperr.Validationf("insufficient balance")
	}
	sIn := models.SecretSet(inputs)

	var outputConfig *mintclient.OutputConfig
	if p2pkPubkey != "" {
		normalized, nerr := pubkey.Normalize(p2pkPubkey)
		if nerr != nil {
			return nil, nil, apperr.Validationf("%s", nerr.Error())
		}
		outputConfig = &mintclient.OutputConfig{
			Send: &mintclient.P2PKOption{Type: "p2pk", Options: mintclient.P2PKPubkeyOpt{Pubkey: normalized}},
		}
	}

	result, err := e.mint.Swap(ctx, wallet.MintURL, uint64(amount), toMintProofs(inputs), true, outputConfig)
	if err != nil {
		return nil, nil, mapMintErr(err)
	}

	if err := e.persistSwapResult(ctx, wallet.ID, sIn, result); err != nil {
		return nil, nil, apperr.Databasef(err, "persist send")
	}

	e.auditLog(ctx, wallet.ID, "send_proofs", "proof", nil, map[string]any{"amount": amount, "locked": p2pkPubkey != ""})

	return fromMintProofsList(wallet.ID, result.Keep, models.ProofStatusUnspent),
		fromMintProofsList(wallet.ID, result.Send, models.ProofStatusPending),
		nil
}

// ReceiveToken performs a swap at the mint for an incoming token's
// proofs; the resulting fresh proofs are inserted UNSPENT.
func (e *Engine) ReceiveToken(ctx context.Context, wallet *models.Wallet, tokenStr string) ([]models.Proof, error) {
	unlock := e.locks.Lock(wallet.ID)
	defer unlock()

	received, err := e.mint.Receive(ctx, wallet.MintURL, tokenStr)
	if err != nil {
		return nil, mapMintErr(err)
	}

	proofs := fromMintProofsList(wallet.ID, received, models.ProofStatusUnspent)
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.store.InsertProofs(ctx, wallet.ID, proofs, models.ProofStatusUnspent); err != nil {
			return err
		}
		return e.store.TouchWalletUpdatedAt(ctx, wallet.ID)
	})
	if err != nil {
		return nil, apperr.Databasef(err, "persist received proofs")
	}

	e.auditLog(ctx, wallet.ID, "receive_token", "proof", nil, map[string]any{"amount": models.SumAmount(proofs)})

	return proofs, nil
}

// CreateMeltQuote is a thin pass-through to the mint's bolt11
// melt-quote endpoint.
func (e *Engine) CreateMeltQuote(ctx context.Context, wallet *models.Wallet, bolt11 string) (*mintclient.MeltQuote, error) {
	quote, err := e.mint.CreateMeltQuote(ctx, wallet.MintURL, bolt11, wallet.Unit)
	if err != nil {
		return nil, mapMintErr(err)
	}
	return quote, nil
}

// CheckMeltQuoteStatus is a thin pass-through used by GET
// /wallet/pay/:quote; it never re-attempts payment or touches stored
// proofs, it only reports the mint's current view of the quote.
func (e *Engine) CheckMeltQuoteStatus(ctx context.Context, wallet *models.Wallet, quoteID string) (*mintclient.MeltQuote, error) {
	quote, err := e.mint.CheckMeltQuote(ctx, wallet.MintURL, quoteID)
	if err != nil {
		return nil, mapMintErr(err)
	}
	return quote, nil
}

// MeltProofs pays a Lightning invoice via the mint, handling the
// unknown-outcome branches (paid, pending, unpaid with a structured NUT
// error, unpaid with no clean signal) that follow a Lightning payment
// attempt whose result the caller cannot simply retry.
func (e *Engine) MeltProofs(ctx context.Context, wallet *models.Wallet, quote *mintclient.MeltQuote) (*MeltOutcome, error) {
	unlock := e.locks.Lock(wallet.ID)
	defer unlock()

	needed := int64(quote.Amount + quote.FeeReserve)
	inputs, err := e.store.ListProofs(ctx, wallet.ID, models.ProofStatusUnspent)
	if err != nil {
		return nil, apperr.Databasef(err, "list unspent proofs")
	}
	if models.SumAmount(inputs) < needed {
		return nil, apperr.Validationf("insufficient balance for melt")
	}
	sIn := models.SecretSet(inputs)

	result, err := e.mint.Swap(ctx, wallet.MintURL, uint64(needed), toMintProofs(inputs), false, nil)
	if err != nil {
		return nil, mapMintErr(err)
	}

	if err := e.persistSwapResult(ctx, wallet.ID, sIn, result); err != nil {
		return nil, apperr.Databasef(err, "persist melt reservation")
	}
	e.auditLog(ctx, wallet.ID, "melt_reserve", "proof", nil, map[string]any{"amount": needed})

	proofsToSend := result.Send
	meltResult, change, meltErr := e.mint.MeltProofs(ctx, wallet.MintURL, quote, proofsToSend)
	if meltErr == nil {
		return e.settleMeltSuccess(ctx, wallet, proofsToSend, meltResult, change)
	}

	return e.resolveMeltFailure(ctx, wallet, quote, proofsToSend, meltErr)
}

// settleMeltSuccess marks the reserved inputs spent and persists any
// change in one transaction. The payment has already gone out over
// Lightning by the time this runs, so a failure here cannot be undone;
// but committing both writes together means a crash mid-way can never
// mark proofs spent while losing the change that replaces them.
func (e *Engine) settleMeltSuccess(ctx context.Context, wallet *models.Wallet, spent []mintclient.Proof, quote *mintclient.MeltQuote, change []mintclient.Proof) (*MeltOutcome, error) {
	changeProofs := fromMintProofsList(wallet.ID, change, models.ProofStatusUnspent)
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.store.UpdateStatus(ctx, wallet.ID, secretsOf(spent), models.ProofStatusSpent); err != nil {
			return err
		}
		if len(changeProofs) > 0 {
			if err := e.store.InsertProofs(ctx, wallet.ID, changeProofs, models.ProofStatusUnspent); err != nil {
				return err
			}
		}
		return e.store.TouchWalletUpdatedAt(ctx, wallet.ID)
	})
	if err != nil {
		e.log.Error("failed to persist melt settlement", zap.Int64("wallet_id", wallet.ID), zap.Error(err))
	}
	e.auditLog(ctx, wallet.ID, "melt_settle", "mint_quote", nil, map[string]any{"quote": quote.Quote})
	e.publish(ctx, wallet.ID, events.EventMeltSettled, map[string]any{"quote": quote.Quote})
	return &MeltOutcome{Quote: quote, Change: changeProofs}, nil
}

// resolveMeltFailure implements the Phase B.failure branch table.
func (e *Engine) resolveMeltFailure(ctx context.Context, wallet *models.Wallet, quote *mintclient.MeltQuote, reserved []mintclient.Proof, payErr error) (*MeltOutcome, error) {
	checked, checkErr := e.mint.CheckMeltQuote(ctx, wallet.MintURL, quote.Quote)
	if checkErr != nil {
		e.log.Warn("melt payment outcome unknown, recheck itself failed; leaving proofs pending",
			zap.Int64("wallet_id", wallet.ID), zap.String("quote", quote.Quote), zap.Error(checkErr))
		return nil, apperr.Connectionf(checkErr, "melt payment outcome unknown, mint unreachable for recheck")
	}

	switch checked.State {
	case mintclient.MeltQuotePaid:
		return e.settleMeltSuccess(ctx, wallet, reserved, checked, nil)

	case mintclient.MeltQuotePending:
		e.publish(ctx, wallet.ID, events.EventMeltPending, map[string]any{"quote": quote.Quote})
		return nil, apperr.TimeoutPending("payment in flight, check back later")

	case mintclient.MeltQuoteUnpaid:
		var opErr *mintclient.OperationError
		if errors.As(payErr, &opErr) {
			switch opErr.Code {
			case mintclient.ErrCodeProofsPending:
				e.reconcileAfterFailure(ctx, wallet.ID)
				return nil, apperr.TimeoutPending("proofs pending at mint, reconciliation initiated")
			case mintclient.ErrCodeTokenAlreadySpent:
				e.reconcileAfterFailure(ctx, wallet.ID)
				return nil, apperr.Connectionf(payErr, "proofs already spent at mint")
			}
		}
		if err := e.store.UpdateStatus(ctx, wallet.ID, secretsOf(reserved), models.ProofStatusUnspent); err != nil {
			e.log.Error("failed to revert unpaid melt reservation", zap.Int64("wallet_id", wallet.ID), zap.Error(err))
		} else {
			e.touch(ctx, wallet.ID)
		}
		return nil, apperr.Connectionf(payErr, "melt payment failed")

	default:
		return nil, apperr.Connectionf(payErr, "melt payment failed with unrecognized mint state %q", checked.State)
	}
}

func (e *Engine) reconcileAfterFailure(ctx context.Context, walletID int64) {
	if _, err := e.ReconcileWithMint(ctx, walletID); err != nil {
		e.log.Error("reconciliation after melt failure did not complete", zap.Int64("wallet_id", walletID), zap.Error(err))
	}
}

// ReconcileWithMint checks every PENDING proof owned by the wallet
// against the mint's authoritative state and aligns local rows.
func (e *Engine) ReconcileWithMint(ctx context.Context, walletID int64) (*ReconcileResult, error) {
	pending, err := e.store.ListProofs(ctx, walletID, models.ProofStatusPending)
	if err != nil {
		return nil, apperr.Databasef(err, "list pending proofs")
	}
	if len(pending) == 0 {
		return &ReconcileResult{}, nil
	}

	wallet, err := e.store.GetWallet(ctx, walletID)
	if err != nil || wallet == nil {
		return nil, apperr.Databasef(err, "load wallet for reconciliation")
	}

	ys := make([]string, len(pending))
	bySecret := make(map[string]models.Proof, len(pending))
	for i, p := range pending {
		ys[i] = p.Secret
		bySecret[p.Secret] = p
	}

	states, err := e.mint.CheckProofStates(ctx, wallet.MintURL, ys)
	if err != nil {
		return nil, mapMintErr(err)
	}

	result := &ReconcileResult{}
	var toSpent, toUnspent []string
	for i, state := range states {
		if i >= len(ys) {
			break
		}
		secret := ys[i]
		switch state {
		case mintclient.ProofStateSpent:
			toSpent = append(toSpent, secret)
			result.Spent++
		case mintclient.ProofStateUnspent:
			toUnspent = append(toUnspent, secret)
			result.Unspent++
		default:
			result.Pending++
		}
	}

	if len(toSpent) > 0 {
		if err := e.store.UpdateStatus(ctx, walletID, toSpent, models.ProofStatusSpent); err != nil {
			return nil, apperr.Databasef(err, "reconcile mark spent")
		}
	}
	if len(toUnspent) > 0 {
		if err := e.store.UpdateStatus(ctx, walletID, toUnspent, models.ProofStatusUnspent); err != nil {
			return nil, apperr.Databasef(err, "reconcile mark unspent")
		}
	}
	if len(toSpent) > 0 || len(toUnspent) > 0 {
		e.touch(ctx, walletID)
	}

	e.auditLog(ctx, walletID, "reconcile", "proof", nil, map[string]any{"spent": result.Spent, "unspent": result.Unspent, "pending": result.Pending})
	e.publish(ctx, walletID, events.EventProofReconciled, map[string]any{"spent": result.Spent, "unspent": result.Unspent, "pending": result.Pending})

	return result, nil
}

// CheckTokenState decodes a token and queries the mint for the state of
// its embedded proofs. If any of those secrets match proofs this wallet
// already holds (e.g. checking a token it sent earlier), their local
// rows are reconciled against the mint's answer.
func (e *Engine) CheckTokenState(ctx context.Context, wallet *models.Wallet, tokenStr string) ([]mintclient.ProofState, *mintclient.DecodedToken, error) {
	decoded, err := e.mint.DecodeToken(tokenStr)
	if err != nil {
		return nil, nil, apperr.Validationf("%s", err.Error())
	}

	ys := make([]string, len(decoded.Proofs))
	for i, p := range decoded.Proofs {
		ys[i] = p.Secret
	}

	states, err := e.mint.CheckProofStates(ctx, wallet.MintURL, ys)
	if err != nil {
		return nil, nil, mapMintErr(err)
	}

	var toSpent, toUnspent []string
	for i, state := range states {
		if i >= len(ys) {
			break
		}
		switch state {
		case mintclient.ProofStateSpent:
			toSpent = append(toSpent, ys[i])
		case mintclient.ProofStateUnspent:
			toUnspent = append(toUnspent, ys[i])
		}
	}
	if len(toSpent) > 0 {
		if err := e.store.UpdateStatus(ctx, wallet.ID, toSpent, models.ProofStatusSpent); err != nil {
			e.log.Warn("failed to reconcile spent rows during token check", zap.Int64("wallet_id", wallet.ID), zap.Error(err))
		}
	}
	if len(toUnspent) > 0 {
		if err := e.store.UpdateStatus(ctx, wallet.ID, toUnspent, models.ProofStatusUnspent); err != nil {
			e.log.Warn("failed to reconcile unspent rows during token check", zap.Int64("wallet_id", wallet.ID), zap.Error(err))
		}
	}

	return states, decoded, nil
}

// DecodeToken is a thin pass-through used by /wallet/decode; it never
// touches the mint.
func (e *Engine) DecodeToken(tokenStr string) (*mintclient.DecodedToken, error) {
	decoded, err := e.mint.DecodeToken(tokenStr)
	if err != nil {
		return nil, apperr.Validationf("%s", err.Error())
	}
	return decoded, nil
}

// EncodeToken serializes a send bundle into a transportable token
// string; the mint client stays the only component that knows the wire
// format, same as decode.
func (e *Engine) EncodeToken(proofs []models.Proof, mintURL, unit, memo string) (string, error) {
	token, err := e.mint.EncodeToken(toMintProofs(proofs), mintURL, unit, memo)
	if err != nil {
		return "", apperr.Serverf(err, "encode token")
	}
	return token, nil
}

// persistSwapResult implements the classify-then-persist algorithm
// shared by sendProofs and meltProofs' Phase A: mark consumed inputs
// SPENT, insert genuinely new keep/send proofs, and flip any input that
// reappeared unchanged in the send bucket to PENDING, all atomically.
func (e *Engine) persistSwapResult(ctx context.Context, walletID int64, sIn map[string]struct{}, result *mintclient.SwapResult) error {
	returned := make(map[string]struct{}, len(result.Keep)+len(result.Send))
	for _, p := range result.Keep {
		returned[p.Secret] = struct{}{}
	}
	for _, p := range result.Send {
		returned[p.Secret] = struct{}{}
	}

	var swapped []string
	for secret := range sIn {
		if _, ok := returned[secret]; !ok {
			swapped = append(swapped, secret)
		}
	}

	var newKeep, newSend []models.Proof
	var reappearedSend []string
	for _, p := range result.Keep {
		if _, in := sIn[p.Secret]; !in {
			newKeep = append(newKeep, fromMintProof(walletID, models.ProofStatusUnspent, p))
		}
	}
	for _, p := range result.Send {
		if _, in := sIn[p.Secret]; in {
			reappearedSend = append(reappearedSend, p.Secret)
		} else {
			newSend = append(newSend, fromMintProof(walletID, models.ProofStatusPending, p))
		}
	}

	return e.store.WithTx(ctx, func(ctx context.Context) error {
		if len(swapped) > 0 {
			if err := e.store.UpdateStatus(ctx, walletID, swapped, models.ProofStatusSpent); err != nil {
				return err
			}
		}
		if len(newKeep) > 0 {
			if err := e.store.InsertProofs(ctx, walletID, newKeep, models.ProofStatusUnspent); err != nil {
				return err
			}
		}
		if len(newSend) > 0 {
			if err := e.store.InsertProofs(ctx, walletID, newSend, models.ProofStatusPending); err != nil {
				return err
			}
		}
		if len(reappearedSend) > 0 {
			if err := e.store.UpdateStatus(ctx, walletID, reappearedSend, models.ProofStatusPending); err != nil {
				return err
			}
		}
		return e.store.TouchWalletUpdatedAt(ctx, walletID)
	})
}

func (e *Engine) auditLog(ctx context.Context, walletID int64, action, entityType string, entityID *int64, meta map[string]any) {
	if e.audit == nil {
		return
	}
	err := e.audit.Log(ctx, models.AuditLog{
		WalletID:   walletID,
		ActorType:  "engine",
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Meta:       meta,
	})
	if err != nil {
		e.log.Warn("audit log write failed", zap.Int64("wallet_id", walletID), zap.String("action", action), zap.Error(err))
	}
}

// touch bumps the wallet's updated_at after a write-affecting
// operation completes. Failures are logged and swallowed, matching
// auditLog and publish: a missed touch never blocks the operation it
// is recording.
func (e *Engine) touch(ctx context.Context, walletID int64) {
	if err := e.store.TouchWalletUpdatedAt(ctx, walletID); err != nil {
		e.log.Warn("failed to bump wallet updated_at", zap.Int64("wallet_id", walletID), zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, walletID int64, eventType string, payload map[string]any) {
	if e.publisher == nil {
		return
	}
	payload["wallet_id"] = walletID
	if err := e.publisher.Publish(ctx, events.StreamWallet, events.Event{Type: eventType, Payload: payload}); err != nil {
		e.log.Warn("event publish failed", zap.String("event", eventType), zap.Int64("wallet_id", walletID), zap.Error(err))
	}
}

// mapMintErr turns a mint client error into an apperr, preserving a
// structured NUT error code when one is present.
func mapMintErr(err error) error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	var opErr *mintclient.OperationError
	if errors.As(err, &opErr) {
		return apperr.Connectionf(err, "mint error %d: %s", opErr.Code, opErr.Detail)
	}
	return apperr.Connectionf(err, "mint call failed: %v", err)
}
