package dto

import "github.com/ads-marketplace/backend/internal/limits"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type InfoResponse struct {
	Status string           `json:"status"`
	Help   string           `json:"help"`
	Terms  string            `json:"terms"`
	Unit   string            `json:"unit"`
	Mint   string            `json:"mint"`
	Limits InfoLimitsPayload `json:"limits"`
}

type InfoLimitsPayload struct {
	MaxBalance     int64 `json:"max_balance"`
	MaxSend        int64 `json:"max_send"`
	MaxPay         int64 `json:"max_pay"`
	RateLimitMax   int   `json:"rate_limit_max"`
	RateLimitWindowSeconds int `json:"rate_limit_window_seconds"`
}

type WalletResponse struct {
	Name            *string          `json:"name,omitempty"`
	AccessKey       string           `json:"access_key,omitempty"`
	Mint            string           `json:"mint"`
	Unit            string           `json:"unit"`
	Balance         int64            `json:"balance"`
	PendingBalance  int64            `json:"pending_balance"`
	Limits          *limits.Snapshot `json:"limits,omitempty"`
}

type DepositQuoteResponse struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	State   string `json:"state"`
	Expiry  int64  `json:"expiry"`
}

type SendResponse struct {
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
	Unit   string `json:"unit"`
	Memo   string `json:"memo,omitempty"`
}

type CheckResponse struct {
	Amount          int64    `json:"amount"`
	Unit            string   `json:"unit"`
	Memo            string   `json:"memo,omitempty"`
	State           string   `json:"state"`
	MintProofStates []string `json:"mint_proof_states"`
}

type DecodeResponse struct {
	Type    string `json:"type"`
	Decoded any    `json:"decoded"`
}

type PayResponse struct {
	Quote            string `json:"quote"`
	Amount           int64  `json:"amount"`
	FeeReserve       int64  `json:"fee_reserve"`
	State            string `json:"state"`
	PaymentPreimage  string `json:"payment_preimage,omitempty"`
	Expiry           int64  `json:"expiry"`
}

type ReceiveResponse struct {
	Amount         int64 `json:"amount"`
	Unit           string `json:"unit"`
	Balance        int64 `json:"balance"`
	PendingBalance int64 `json:"pending_balance"`
}

type RateResponse struct {
	Currency  string `json:"currency"`
	Rate      int64  `json:"rate"`
	Timestamp int64  `json:"timestamp"`
}

type AuditLogEntry struct {
	ID         int64  `json:"id"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   *int64 `json:"entity_id,omitempty"`
	Meta       any    `json:"meta,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type AuditLogResponse struct {
	Entries []AuditLogEntry `json:"entries"`
}
