package models

import "time"

// Wallet is an isolated balance scope against one mint, in one unit.
// AccessKey is the bearer credential; it is generated once at creation
// time and never rotated.
type Wallet struct {
	ID         int64      `json:"id"`
	AccessKey  string     `json:"access_key,omitempty"`
	Name       *string    `json:"name,omitempty"`
	MintURL    string     `json:"mint"`
	Unit       string     `json:"unit"`
	MaxBalance *int64     `json:"max_balance,omitempty"`
	MaxSend    *int64     `json:"max_send,omitempty"`
	MaxPay     *int64     `json:"max_pay,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

const (
	UnitSat  = "sat"
	UnitMsat = "msat"
)

func IsValidUnit(unit string) bool {
	return unit == UnitSat || unit == UnitMsat
}
