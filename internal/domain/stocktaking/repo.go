package stocktaking

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

var ErrDuplicateCode = errors.New("stocktaking: duplicate task code")

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const taskCols = `st.id, st.task_code, st.task_name, st.status, st.start_date, st.end_date, st.creator_id,
	st.completed_by, st.completed_at, st.remark, st.created_at, st.updated_at`

const taskStatsCols = taskCols + `,
	(SELECT COUNT(*) FROM stocktaking_items WHERE task_id = st.id),
	(SELECT COUNT(*) FROM stocktaking_items WHERE task_id = st.id AND actual_stock IS NOT NULL),
	COALESCE(u.real_name, '')`

func taskDest(t *Task) []any {
	return []any{
		&t.ID,
		&t.Code,
		&t.Name,
		&t.Status,
		&t.StartDate,
		&t.EndDate,
		&t.CreatorID,
		&t.CompletedBy,
		&t.CompletedAt,
		&t.Remark,
		&t.CreatedAt,
		&t.UpdatedAt,
	}
}

func scanTaskStats(row pgx.Row) (*Task, error) {
	var t Task
	if err := row.Scan(append(taskDest(&t), &t.ItemCount, &t.CountedCount, &t.CreatorName)...); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask inserts t as draft and fills ID, Status and timestamps.
func (r *Repo) CreateTask(ctx context.Context, t *Task) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO stocktaking_tasks (task_code, task_name, start_date, end_date, creator_id, remark, status)
		VALUES ($1,$2,$3,$4,$5,$6,'draft')
		RETURNING id, status, created_at, updated_at
	`, t.Code, t.Name, t.StartDate, t.EndDate, t.CreatorID, t.Remark).
		Scan(&t.ID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}

// AddItem inserts an uncounted item carrying its book stock snapshot.
func (r *Repo) AddItem(ctx context.Context, it *Item) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO stocktaking_items (task_id, material_id, book_stock)
		VALUES ($1,$2,$3)
		RETURNING id, created_at, updated_at
	`, it.TaskID, it.MaterialID, it.BookStock).Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
}

func (r *Repo) GetTask(ctx context.Context, id int64) (*Task, error) {
	t, err := scanTaskStats(r.db.QueryRow(ctx, `
		SELECT `+taskStatsCols+`
		FROM stocktaking_tasks st
		LEFT JOIN users u ON u.id = st.creator_id
		WHERE st.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("stocktaking task %d", id)
	}
	return t, err
}

// GetTaskForUpdate reads the task and locks it until the surrounding transaction ends.
func (r *Repo) GetTaskForUpdate(ctx context.Context, id int64) (*Task, error) {
	var t Task
	err := r.db.QueryRow(ctx, `SELECT `+taskCols+` FROM stocktaking_tasks st WHERE st.id = $1 FOR UPDATE`, id).
		Scan(taskDest(&t)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("stocktaking task %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const itemCols = `si.id, si.task_id, si.material_id, si.book_stock, si.actual_stock, si.difference, si.difference_type,
	si.remark, si.created_at, si.updated_at,
	COALESCE(m.material_code,''), COALESCE(m.material_name,''), COALESCE(m.unit,''), COALESCE(m.category,'')`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	if err := row.Scan(
		&it.ID,
		&it.TaskID,
		&it.MaterialID,
		&it.BookStock,
		&it.ActualStock,
		&it.Difference,
		&it.DifferenceType,
		&it.Remark,
		&it.CreatedAt,
		&it.UpdatedAt,
		&it.MaterialCode,
		&it.MaterialName,
		&it.MaterialUnit,
		&it.MaterialCategory,
	); err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItem returns the item only when it belongs to taskID.
func (r *Repo) GetItem(ctx context.Context, taskID, itemID int64) (*Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, `
		SELECT `+itemCols+`
		FROM stocktaking_items si
		LEFT JOIN materials m ON m.id = si.material_id
		WHERE si.id = $1 AND si.task_id = $2`, itemID, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("item %d in stocktaking task %d", itemID, taskID)
	}
	return it, err
}

// SaveCount overwrites the count of an item; counting again replaces the previous value.
func (r *Repo) SaveCount(ctx context.Context, c Count, remark string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE stocktaking_items
		SET actual_stock = $2, difference = $3, difference_type = $4, remark = $5, updated_at = now()
		WHERE id = $1
	`, c.ItemID, c.ActualStock, c.Difference, string(c.DifferenceType), remark)
	if err != nil {
		return fmt.Errorf("save count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("stocktaking item %d", c.ItemID)
	}
	return nil
}

// ListItems returns the task's items in creation order.
func (r *Repo) ListItems(ctx context.Context, taskID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemCols+`
		FROM stocktaking_items si
		LEFT JOIN materials m ON m.id = si.material_id
		WHERE si.task_id = $1
		ORDER BY si.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *Repo) CountUncounted(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM stocktaking_items WHERE task_id = $1 AND actual_stock IS NULL
	`, taskID).Scan(&n)
	return n, err
}

// Transition moves the task to `to` only if its current status is one of from.
func (r *Repo) Transition(ctx context.Context, id int64, from []Status, to Status) (bool, error) {
	names := make([]string, 0, len(from))
	for _, s := range from {
		names = append(names, string(s))
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE stocktaking_tasks SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, id, string(to), names)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) Complete(ctx context.Context, id, completedBy int64, at time.Time, remark string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE stocktaking_tasks
		SET status = 'completed', completed_by = $2, completed_at = $3, remark = $4, updated_at = now()
		WHERE id = $1 AND status IN ('draft', 'in_progress')
	`, id, completedBy, at, remark)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.InvalidState("stocktaking task %d is closed", id)
	}
	return nil
}

func (r *Repo) ListTasks(ctx context.Context, f ListFilter) ([]Task, int, error) {
	where := `
	WHERE ($1::bigint = 0 OR st.creator_id = $1)
	  AND ($2::text = '' OR st.status = $2)`
	args := []any{f.CreatorID, string(f.Status)}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stocktaking_tasks st`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := db.PageBounds(f.Page, f.PageSize)
	rows, err := r.db.Query(ctx, `
		SELECT `+taskStatsCols+`
		FROM stocktaking_tasks st
		LEFT JOIN users u ON u.id = st.creator_id`+where+`
		ORDER BY st.created_at DESC, st.id DESC
		LIMIT $3 OFFSET $4`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Task, 0, limit)
	for rows.Next() {
		t, err := scanTaskStats(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}
