// Package store defines the persistence boundary the proof engine talks
// to. It is an interface, not a concrete pgx type, so engine tests can
// run against an in-memory fake instead of a live Postgres instance.
package store

import (
	"context"

	"github.com/ads-marketplace/backend/internal/models"
)

// Store is the sole persistence boundary named in the component design:
// the engine reads and writes wallets and proofs through it and never
// issues SQL of its own.
type Store interface {
	CreateWallet(ctx context.Context, w *models.Wallet) error
	FindWalletByAccessKey(ctx context.Context, accessKey string) (*models.Wallet, error)
	GetWallet(ctx context.Context, id int64) (*models.Wallet, error)
	DeleteWallet(ctx context.Context, id int64) error
	DeleteProofsByWallet(ctx context.Context, walletID int64) error
	TouchWalletUpdatedAt(ctx context.Context, id int64) error

	AggregateAmount(ctx context.Context, walletID int64, status string) (int64, error)
	ListProofs(ctx context.Context, walletID int64, status string) ([]models.Proof, error)
	InsertProofs(ctx context.Context, walletID int64, proofs []models.Proof, status string) error
	UpdateStatus(ctx context.Context, walletID int64, secrets []string, status string) error

	// WithTx runs fn with a transaction bound into the returned context;
	// every Store call made with that context participates in the same
	// transaction. Nested calls reuse the outer transaction rather than
	// opening a new one.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
