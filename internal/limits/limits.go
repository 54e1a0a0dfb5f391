// Package limits computes the effective per-wallet vs global caps on
// balance, send, and pay.
package limits

// Global defaults, overridable via config.
const (
	DefaultMaxBalance int64 = 100_000
	DefaultMaxSend    int64 = 50_000
	DefaultMaxPay     int64 = 50_000
)

// Effective returns min(walletCap, globalDefault) when walletCap is set,
// else globalDefault.
func Effective(walletCap *int64, globalDefault int64) int64 {
	if walletCap == nil {
		return globalDefault
	}
	if *walletCap < globalDefault {
		return *walletCap
	}
	return globalDefault
}

// Snapshot is the {max_balance,max_send,max_pay} view returned by
// GET /wallet.
type Snapshot struct {
	MaxBalance int64 `json:"max_balance"`
	MaxSend    int64 `json:"max_send"`
	MaxPay     int64 `json:"max_pay"`
}
