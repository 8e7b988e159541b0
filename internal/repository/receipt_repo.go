package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapolinarweb/contracts/internal/models"
)

// ReceiptRepository reads relay receipts.
type ReceiptRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	ListByAccount(ctx context.Context, addr common.Address, limit int) ([]*models.Receipt, error)
}

type receiptRepo struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository creates a new receipt repository.
func NewReceiptRepository(pool *pgxpool.Pool) ReceiptRepository {
	return &receiptRepo{pool: pool}
}

const receiptColumns = `id, account, tx_hash, nonce, signer, key_class, relayer, outcome,
	revert_reason, return_data, gas_used, refund, fee_token, created_at`

func insertReceipt(ctx context.Context, tx pgx.Tx, rec *models.Receipt) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	var refund pgtype.Numeric
	if err := refund.Scan(rec.Refund); err != nil {
		return fmt.Errorf("repository: invalid refund amount %q: %w", rec.Refund, err)
	}
	return tx.QueryRow(ctx, `
		INSERT INTO relay_receipts (id, account, tx_hash, nonce, signer, key_class, relayer, outcome,
			revert_reason, return_data, gas_used, refund, fee_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`,
		rec.ID, rec.Account, rec.TxHash, int64(rec.Nonce), rec.Signer, rec.KeyClass, rec.Relayer, rec.Outcome,
		rec.RevertReason, rec.ReturnData, int64(rec.GasUsed), refund, rec.FeeToken,
	).Scan(&rec.CreatedAt)
}

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	var (
		rec            models.Receipt
		nonce, gasUsed int64
		refund         pgtype.Numeric
	)
	err := row.Scan(
		&rec.ID,
		&rec.Account,
		&rec.TxHash,
		&nonce,
		&rec.Signer,
		&rec.KeyClass,
		&rec.Relayer,
		&rec.Outcome,
		&rec.RevertReason,
		&rec.ReturnData,
		&gasUsed,
		&refund,
		&rec.FeeToken,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Nonce = uint64(nonce)
	rec.GasUsed = uint64(gasUsed)
	rec.Refund = "0"
	if v := bigFromNumeric(refund); v != nil {
		rec.Refund = v.String()
	}
	return &rec, nil
}

// GetByID retrieves a receipt. It returns nil, nil when none exists.
func (r *receiptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	rec, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM relay_receipts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListByAccount returns the most recent receipts of an account, newest first.
func (r *receiptRepo) ListByAccount(ctx context.Context, addr common.Address, limit int) ([]*models.Receipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+receiptColumns+`
		FROM relay_receipts WHERE account = $1
		ORDER BY nonce DESC, created_at DESC
		LIMIT $2`, addr.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ ReceiptRepository = (*receiptRepo)(nil)
