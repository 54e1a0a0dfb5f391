// Package repositories holds the concrete pgx implementation of the
// store.Store boundary: one struct wrapping a *pgxpool.Pool, one method
// per query, context first, plus transaction-awareness via a
// context-carried pgx.Tx, since the engine's multi-row writes (classify,
// mark SPENT, insert, flip) must commit as one unit.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ads-marketplace/backend/internal/models"
)

type txKey struct{}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so repo
// methods don't need to know whether they're running inside WithTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CreateWallet(ctx context.Context, w *models.Wallet) error {
	row := s.q(ctx).QueryRow(ctx, `
		INSERT INTO wallets (access_key, name, mint_url, unit, max_balance, max_send, max_pay)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, w.AccessKey, w.Name, w.MintURL, w.Unit, w.MaxBalance, w.MaxSend, w.MaxPay)
	return row.Scan(&w.ID, &w.CreatedAt)
}

func (s *PostgresStore) FindWalletByAccessKey(ctx context.Context, accessKey string) (*models.Wallet, error) {
	return s.scanWallet(s.q(ctx).QueryRow(ctx, `
		SELECT id, access_key, name, mint_url, unit, max_balance, max_send, max_pay, created_at, updated_at
		FROM wallets WHERE access_key = $1
	`, accessKey))
}

func (s *PostgresStore) GetWallet(ctx context.Context, id int64) (*models.Wallet, error) {
	return s.scanWallet(s.q(ctx).QueryRow(ctx, `
		SELECT id, access_key, name, mint_url, unit, max_balance, max_send, max_pay, created_at, updated_at
		FROM wallets WHERE id = $1
	`, id))
}

func (s *PostgresStore) scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.AccessKey, &w.Name, &w.MintURL, &w.Unit, &w.MaxBalance, &w.MaxSend, &w.MaxPay, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repositories: scan wallet: %w", err)
	}
	return &w, nil
}

func (s *PostgresStore) DeleteWallet(ctx context.Context, id int64) error {
	_, err := s.q(ctx).Exec(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) DeleteProofsByWallet(ctx context.Context, walletID int64) error {
	_, err := s.q(ctx).Exec(ctx, `DELETE FROM proofs WHERE wallet_id = $1`, walletID)
	return err
}

func (s *PostgresStore) TouchWalletUpdatedAt(ctx context.Context, id int64) error {
	_, err := s.q(ctx).Exec(ctx, `UPDATE wallets SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	return err
}
