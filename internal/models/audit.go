package models

import "time"

// AuditLog records one balance-affecting engine operation. ActorType is
// always "engine" today (there is no separate admin/bot actor in this
// service) but the column is kept distinct from EntityType in case a
// future caller identity model sits above the wallet.
type AuditLog struct {
	ID         int64     `json:"id"`
	WalletID   int64     `json:"wallet_id"`
	ActorType  string    `json:"actor_type"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   *int64    `json:"entity_id,omitempty"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
