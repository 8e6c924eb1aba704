package history

import (
	"context"

	"github.com/Spok95/stockdesk/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

// Append inserts e and fills its ID and CreatedAt.
func (r *Repo) Append(ctx context.Context, e *Entry) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO stock_history
			(material_id, transaction_id, change_type, quantity_change, stock_before, stock_after, operator_id, remark)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at
	`, e.MaterialID, e.TransactionID, string(e.ChangeType), e.QuantityChange, e.StockBefore, e.StockAfter,
		e.OperatorID, e.Remark).Scan(&e.ID, &e.CreatedAt)
}

// ListByMaterial returns the newest entries first.
func (r *Repo) ListByMaterial(ctx context.Context, materialID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = db.MaxPageSize
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, material_id, transaction_id, change_type, quantity_change, stock_before, stock_after,
			operator_id, remark, created_at
		FROM stock_history
		WHERE material_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, materialID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.MaterialID,
			&e.TransactionID,
			&e.ChangeType,
			&e.QuantityChange,
			&e.StockBefore,
			&e.StockAfter,
			&e.OperatorID,
			&e.Remark,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByTransaction is used to assert the at-most-once history row per transaction.
func (r *Repo) CountByTransaction(ctx context.Context, transactionID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_history WHERE transaction_id = $1`, transactionID).Scan(&n)
	return n, err
}
