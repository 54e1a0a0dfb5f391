package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/apperr"
	"github.com/ads-marketplace/backend/internal/config"
	"github.com/ads-marketplace/backend/internal/engine"
	"github.com/ads-marketplace/backend/internal/http/dto"
	"github.com/ads-marketplace/backend/internal/limits"
	"github.com/ads-marketplace/backend/internal/lightning"
	"github.com/ads-marketplace/backend/internal/lnurl"
	"github.com/ads-marketplace/backend/internal/middleware"
	"github.com/ads-marketplace/backend/internal/mintclient"
	"github.com/ads-marketplace/backend/internal/models"
	"github.com/ads-marketplace/backend/internal/repositories"
	"github.com/ads-marketplace/backend/internal/store"
)

// WalletHandler is the HTTP facade over the proof engine: it owns
// request parsing, limit checks, and response shaping, and delegates
// every balance-affecting decision to the engine. Wallet creation and
// lookup by access key, and reading the audit trail, are the concerns
// the facade still talks to the store and audit repo for directly,
// since they sit a layer above anything the engine's state machine
// models.
type WalletHandler struct {
	store  store.Store
	audit  *repositories.AuditRepo
	engine *engine.Engine
	cfg    *config.Config
	lnurl  *lnurl.Resolver
	log    *zap.Logger
}

func NewWalletHandler(st store.Store, audit *repositories.AuditRepo, eng *engine.Engine, cfg *config.Config, resolver *lnurl.Resolver, log *zap.Logger) *WalletHandler {
	return &WalletHandler{store: st, audit: audit, engine: eng, cfg: cfg, lnurl: resolver, log: log}
}

func generateAccessKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// POST /wallet
func (h *WalletHandler) CreateWallet(c *fiber.Ctx) error {
	var req dto.CreateWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, h.log, apperr.Validationf("invalid request body"))
	}

	accessKey, err := generateAccessKey()
	if err != nil {
		return respondErr(c, h.log, apperr.Serverf(err, "generate access key"))
	}

	wallet := &models.Wallet{
		AccessKey: accessKey,
		Name:      req.Name,
		MintURL:   h.cfg.MintURL,
		Unit:      h.cfg.Unit,
	}
	if err := h.store.CreateWallet(c.Context(), wallet); err != nil {
		return respondErr(c, h.log, apperr.Databasef(err, "create wallet"))
	}

	if req.Token != nil && *req.Token != "" {
		proofs, err := h.engine.ReceiveToken(c.Context(), wallet, *req.Token)
		if err != nil {
			h.rollbackWallet(c, wallet.ID)
			return respondErr(c, h.log, err)
		}
		maxBalance := limits.Effective(wallet.MaxBalance, h.cfg.MaxBalance)
		if models.SumAmount(proofs) > maxBalance {
			h.rollbackWallet(c, wallet.ID)
			return respondErr(c, h.log, apperr.LimitExceeded("initial token amount exceeds max balance"))
		}
	}

	balance, pending, err := h.engine.Balance(c.Context(), wallet.ID)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.WalletResponse{
		Name:           wallet.Name,
		AccessKey:      wallet.AccessKey,
		Mint:           wallet.MintURL,
		Unit:           wallet.Unit,
		Balance:        balance,
		PendingBalance: pending,
	})
}

func (h *WalletHandler) rollbackWallet(c *fiber.Ctx, walletID int64) {
	if err := h.store.DeleteProofsByWallet(c.Context(), walletID); err != nil {
		h.log.Error("failed to roll back proofs for failed wallet creation", zap.Int64("wallet_id", walletID), zap.Error(err))
	}
	if err := h.store.DeleteWallet(c.Context(), walletID); err != nil {
		h.log.Error("failed to roll back failed wallet creation", zap.Int64("wallet_id", walletID), zap.Error(err))
	}
}

// GET /wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	balance, pending, err := h.engine.Balance(c.Context(), wallet.ID)
	if err != nil {
		return respondErr(c, h.log, err)
	}
	return c.JSON(dto.WalletResponse{
		Name:           wallet.Name,
		AccessKey:      wallet.AccessKey,
		Mint:           wallet.MintURL,
		Unit:           wallet.Unit,
		Balance:        balance,
		PendingBalance: pending,
		Limits: &limits.Snapshot{
			MaxBalance: limits.Effective(wallet.MaxBalance, h.cfg.MaxBalance),
			MaxSend:    limits.Effective(wallet.MaxSend, h.cfg.MaxSend),
			MaxPay:     limits.Effective(wallet.MaxPay, h.cfg.MaxPay),
		},
	})
}

func checkUnit(wallet *models.Wallet, unit string) error {
	if unit != "" && unit != wallet.Unit {
		return apperr.Validationf("unit %q does not match wallet unit %q", unit, wallet.Unit)
	}
	return nil
}

// POST /wallet/deposit
func (h *WalletHandler) Deposit(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	var req dto.DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, h.log, apperr.Validationf("invalid request body"))
	}
	if req.Amount <= 0 {
		return respondErr(c, h.log, apperr.Validationf("amount must be positive"))
	}
	if err := checkUnit(wallet, req.Unit); err != nil {
		return respondErr(c, h.log, err)
	}

	balance, _, err := h.engine.Balance(c.Context(), wallet.ID)
	if err != nil {
		return respondErr(c, h.log, err)
	}
	maxBalance := limits.Effective(wallet.MaxBalance, h.cfg.MaxBalance)
	if balance+req.Amount > maxBalance {
		return respondErr(c, h.log, apperr.LimitExceeded("deposit would exceed max balance"))
	}

	quote, err := h.engine.CreateDepositQuote(c.Context(), wallet, req.Amount)
	if err != nil {
		return respondErr(c, h.log, err)
	}
	return c.JSON(dto.DepositQuoteResponse{
		Quote:   quote.Quote,
		Request: quote.Request,
		State:   string(quote.State),
		Expiry:  quote.Expiry,
	})
}

// GET /wallet/deposit/:quote
func (h *WalletHandler) CheckDeposit(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	quote, err := h.engine.CheckDepositQuote(c.Context(), wallet, c.Params("quote"))
	if err != nil {
		return respondErr(c, h.log, err)
	}
	return c.JSON(dto.DepositQuoteResponse{
		Quote:   quote.Quote,
		Request: quote.Request,
		State:   string(quote.State),
		Expiry:  quote.Expiry,
	})
}

// POST /wallet/send
func (h *WalletHandler) Send(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	var req dto.SendRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, h.log, apperr.Validationf("invalid request body"))
	}
	if req.CashuRequest != nil && *req.CashuRequest != "" {
		return respondErr(c, h.log, apperr.Validationf("cashu_request is not supported"))
	}
	if req.Amount <= 0 {
		return respondErr(c, h.log, apperr.Validationf("amount must be positive"))
	}
	if err := checkUnit(wallet, req.Unit); err != nil {
		return respondErr(c, h.log, err)
	}
	maxSend := limits.Effective(wallet.MaxSend, h.cfg.MaxSend)
	if req.Amount > maxSend {
		return respondErr(c, h.log, apperr.LimitExceeded("amount exceeds max send"))
	}

	pubkey := ""
	if req.LockToPubkey != nil {
		pubkey = *req.LockToPubkey
	}

	_, send, err := h.engine.SendProofs(c.Context(), wallet, req.Amount, pubkey)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	memo := ""
	if req.Memo != nil {
		memo = *req.Memo
	}
	token, err := h.engine.EncodeToken(send, wallet.MintURL, wallet.Unit, memo)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	return c.JSON(dto.SendResponse{
		Token:  token,
		Amount: req.Amount,
		Unit:   wallet.Unit,
		Memo:   memo,
	})
}

// POST /wallet/check
func (h *WalletHandler) Check(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	var req dto.CheckRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, h.log, apperr.Validationf("invalid request body"))
	}

	states, decoded, err := h.engine.CheckTokenState(c.Context(), wallet, req.Token)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	var amount int64
	for _, p := range decoded.Proofs {
		amount += int64(p.Amount)
	}

	stateStrs := make([]string, len(states))
	for i, s := range states {
		stateStrs[i] = string(s)
	}

	return c.JSON(dto.CheckResponse{
		Amount:          amount,
		Unit:            decoded.Unit,
		Memo:            decoded.Memo,
		State:           overallState(states),
		MintProofStates: stateStrs,
	})
}

func overallState(states []mintclient.ProofState) string {
	if len(states) == 0 {
		return "UNKNOWN"
	}
	allUnspent, allSpent, allPending := true, true, true
	for _, s := range states {
		if s != mintclient.ProofStateUnspent {
			allUnspent = false
		}
		if s != mintclient.ProofStateSpent {
			allSpent = false
		}
		if s != mintclient.ProofStatePending {
			allPending = false
		}
	}
	switch {
	case allUnspent:
		return string(mintclient.ProofStateUnspent)
	case allSpent:
		return string(mintclient.ProofStateSpent)
	case allPending:
		return string(mintclient.ProofStatePending)
	default:
		return "MIXED"
	}
}

// POST /wallet/decode
func (h *WalletHandler) Decode(c *fiber.Ctx) error {
	var req dto.DecodeRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, h.log, apperr.Validationf("invalid request body"))
	}

	switch req.Type {
	case dto.DecodeTypeTokenV3:
		decoded, err := h.engine.DecodeToken(req.Data)
		if err != nil {
			return respondErr(c, h.log, err)
		}
		return c.JSON(dto.DecodeResponse{Type: req.Type, Decoded: decoded})

	case dto.DecodeTypeTokenV4:
		return respondErr(c, h.log, apperr.Validationf("cashu token v4 (CBOR) decoding is not supported"))

	case dto.DecodeTypeBolt11:
		decoded, err := lightning.Decode(req.Data)
		if err != nil {
			return respondErr(c, h.log, apperr.Validationf("%s", err.Error()))
		}
		return c.JSON(dto.DecodeResponse{Type: req.Type, Decoded: decoded})

	case dto.DecodeTypeCashuReqest:
		return respondErr(c, h.log, apperr.Validationf("cashu payment requests are not supported"))

	default:
		return respondErr(c, h.log, apperr.Validationf("unrecognized decode type %q", req.Type))
	}
}

// POST /wallet/pay
func (h *WalletHandler) Pay(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	var req dto.PayRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, h.log, apperr.Validationf("invalid request body"))
	}
	if err := checkUnit(wallet, req.Unit); err != nil {
		return respondErr(c, h.log, err)
	}

	hasBolt11 := req.Bolt11Request != nil && *req.Bolt11Request != ""
	hasLNAddr := req.LightningAddress != nil && *req.LightningAddress != ""
	if hasBolt11 == hasLNAddr {
		return respondErr(c, h.log, apperr.Validationf("exactly one of bolt11_request or lightning_address is required"))
	}

	bolt11 := ""
	if hasBolt11 {
		bolt11 = *req.Bolt11Request
	} else {
		amountMsat := req.Amount * 1000
		invoice, err := h.lnurl.Resolve(c.Context(), *req.LightningAddress, amountMsat)
		if err != nil {
			return respondErr(c, h.log, err)
		}
		bolt11 = invoice
	}

	quote, err := h.engine.CreateMeltQuote(c.Context(), wallet, bolt11)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	maxPay := limits.Effective(wallet.MaxPay, h.cfg.MaxPay)
	if int64(quote.Amount) > maxPay {
		return respondErr(c, h.log, apperr.LimitExceeded("amount exceeds max pay"))
	}

	outcome, err := h.engine.MeltProofs(c.Context(), wallet, quote)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	return c.JSON(dto.PayResponse{
		Quote:           outcome.Quote.Quote,
		Amount:          int64(outcome.Quote.Amount),
		FeeReserve:      int64(outcome.Quote.FeeReserve),
		State:           string(outcome.Quote.State),
		PaymentPreimage: outcome.Quote.PaymentPreimage,
		Expiry:          outcome.Quote.Expiry,
	})
}

// GET /wallet/pay/:quote
func (h *WalletHandler) CheckPay(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	quote, err := h.engine.CheckMeltQuoteStatus(c.Context(), wallet, c.Params("quote"))
	if err != nil {
		return respondErr(c, h.log, err)
	}
	return c.JSON(dto.PayResponse{
		Quote:           quote.Quote,
		Amount:          int64(quote.Amount),
		FeeReserve:      int64(quote.FeeReserve),
		State:           string(quote.State),
		PaymentPreimage: quote.PaymentPreimage,
		Expiry:          quote.Expiry,
	})
}

// POST /wallet/receive
func (h *WalletHandler) Receive(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)
	var req dto.ReceiveRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, h.log, apperr.Validationf("invalid request body"))
	}

	decoded, err := h.engine.DecodeToken(req.Token)
	if err != nil {
		return respondErr(c, h.log, err)
	}
	var incoming int64
	for _, p := range decoded.Proofs {
		incoming += int64(p.Amount)
	}

	balance, _, err := h.engine.Balance(c.Context(), wallet.ID)
	if err != nil {
		return respondErr(c, h.log, err)
	}
	maxBalance := limits.Effective(wallet.MaxBalance, h.cfg.MaxBalance)
	if balance+incoming > maxBalance {
		return respondErr(c, h.log, apperr.LimitExceeded("receiving this token would exceed max balance"))
	}

	proofs, err := h.engine.ReceiveToken(c.Context(), wallet, req.Token)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	newBalance, newPending, err := h.engine.Balance(c.Context(), wallet.ID)
	if err != nil {
		return respondErr(c, h.log, err)
	}

	return c.JSON(dto.ReceiveResponse{
		Amount:         models.SumAmount(proofs),
		Unit:           wallet.Unit,
		Balance:        newBalance,
		PendingBalance: newPending,
	})
}

// GET /wallet/audit
func (h *WalletHandler) GetAuditLog(c *fiber.Ctx) error {
	wallet := middleware.GetWallet(c)

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	entries, err := h.audit.GetByWallet(c.Context(), wallet.ID, limit, offset)
	if err != nil {
		return respondErr(c, h.log, apperr.Databasef(err, "list audit log"))
	}

	out := make([]dto.AuditLogEntry, len(entries))
	for i, e := range entries {
		out[i] = dto.AuditLogEntry{
			ID:         e.ID,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Meta:       e.Meta,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		}
	}
	return c.JSON(dto.AuditLogResponse{Entries: out})
}
