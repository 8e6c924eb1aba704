package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/infra/db"
)

// ErrDuplicateCode is returned by Create when the generated code is already taken.
var ErrDuplicateCode = errors.New("inventory: duplicate transaction code")

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const txCols = `it.id, it.transaction_code, it.transaction_type, it.material_id, it.quantity, it.unit_price,
	it.total_amount, it.applicant_id, it.approver_id, it.status, it.remark, it.created_at, it.updated_at, it.approved_at`

const txJoinedCols = txCols + `,
	COALESCE(m.material_code,''), COALESCE(m.material_name,''), COALESCE(m.unit,''),
	COALESCE(u1.real_name,''), COALESCE(u2.real_name,'')`

const txJoins = `
	FROM inventory_transactions it
	LEFT JOIN materials m ON m.id = it.material_id
	LEFT JOIN users u1 ON u1.id = it.applicant_id
	LEFT JOIN users u2 ON u2.id = it.approver_id`

func scanDest(t *Transaction) []any {
	return []any{
		&t.ID,
		&t.Code,
		&t.Type,
		&t.MaterialID,
		&t.Quantity,
		&t.UnitPrice,
		&t.TotalAmount,
		&t.ApplicantID,
		&t.ApproverID,
		&t.Status,
		&t.Remark,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ApprovedAt,
	}
}

func scanJoined(row pgx.Row) (*Transaction, error) {
	var t Transaction
	dest := append(scanDest(&t), &t.MaterialCode, &t.MaterialName, &t.MaterialUnit, &t.ApplicantName, &t.ApproverName)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts t as pending and fills ID, Status and timestamps.
func (r *Repo) Create(ctx context.Context, t *Transaction) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO inventory_transactions
			(transaction_code, transaction_type, material_id, quantity, unit_price, total_amount, applicant_id, status, remark)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',$8)
		RETURNING id, status, created_at, updated_at
	`, t.Code, string(t.Type), t.MaterialID, t.Quantity, t.UnitPrice, t.TotalAmount, t.ApplicantID, t.Remark).
		Scan(&t.ID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	return err
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Transaction, error) {
	t, err := scanJoined(r.db.QueryRow(ctx, `SELECT `+txJoinedCols+txJoins+` WHERE it.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("transaction %d", id)
	}
	return t, err
}

// GetForUpdate reads the row and locks it until the surrounding transaction ends.
func (r *Repo) GetForUpdate(ctx context.Context, id int64) (*Transaction, error) {
	var t Transaction
	err := r.db.QueryRow(ctx, `SELECT `+txCols+` FROM inventory_transactions it WHERE it.id = $1 FOR UPDATE`, id).
		Scan(scanDest(&t)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("transaction %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetDecision moves a pending transaction to status. It never touches a decided row.
func (r *Repo) SetDecision(ctx context.Context, id int64, status Status, approverID int64, approvedAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE inventory_transactions
		SET status = $2, approver_id = $3, approved_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), approverID, approvedAt)
	if err != nil {
		return fmt.Errorf("set decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.InvalidState("transaction %d is no longer pending", id)
	}
	return nil
}

// Cancel flips a pending transaction to cancelled and reports whether it did.
func (r *Repo) Cancel(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE inventory_transactions
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Transaction, int, error) {
	where := `
	WHERE ($1::bigint = 0 OR it.applicant_id = $1)
	  AND ($2::bigint = 0 OR it.status = 'pending' OR it.approver_id = $2)
	  AND ($3::text = '' OR it.status = $3)
	  AND ($4::text = '' OR it.transaction_type = $4)
	  AND ($5::bigint = 0 OR it.material_id = $5)`
	args := []any{f.Scope.ApplicantID, f.Scope.ApproverID, string(f.Status), string(f.Type), f.MaterialID}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_transactions it`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := db.PageBounds(f.Page, f.PageSize)
	rows, err := r.db.Query(ctx, `SELECT `+txJoinedCols+txJoins+where+`
		ORDER BY it.created_at DESC, it.id DESC
		LIMIT $6 OFFSET $7`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		t, err := scanJoined(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
