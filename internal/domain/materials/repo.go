package materials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/infra/db"
)

// ListFilter narrows List. Zero values mean "no filter".
type ListFilter struct {
	Category Category
	LowOnly  bool
	Page     int
	PageSize int
}

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const materialCols = `id, material_code, material_name, category, unit, current_stock, min_stock, max_stock,
	location, description, created_by, created_at, updated_at`

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	if err := row.Scan(
		&m.ID,
		&m.Code,
		&m.Name,
		&m.Category,
		&m.Unit,
		&m.CurrentStock,
		&m.MinStock,
		&m.MaxStock,
		&m.Location,
		&m.Description,
		&m.CreatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) Create(ctx context.Context, n New) (*Material, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO materials (material_code, material_name, category, unit, current_stock, min_stock, max_stock,
			location, description, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+materialCols,
		n.Code, n.Name, string(n.Category), n.Unit, n.InitialStock, n.MinStock, n.MaxStock,
		n.Location, n.Description, n.CreatedBy)
	return scanMaterial(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Material, error) {
	m, err := scanMaterial(r.db.QueryRow(ctx, `SELECT `+materialCols+` FROM materials WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("material %d", id)
	}
	return m, err
}

// ListByIDs returns the materials that exist among ids, ordered by id. Unknown ids are skipped.
func (r *Repo) ListByIDs(ctx context.Context, ids []int64) ([]Material, error) {
	rows, err := r.db.Query(ctx, `SELECT `+materialCols+` FROM materials WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Material, int, error) {
	where := ` WHERE ($1::text = '' OR category = $1) AND (NOT $2::boolean OR (min_stock > 0 AND current_stock <= min_stock))`

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM materials`+where, string(f.Category), f.LowOnly).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := db.PageBounds(f.Page, f.PageSize)
	rows, err := r.db.Query(ctx, `SELECT `+materialCols+` FROM materials`+where+`
		ORDER BY material_code, id LIMIT $3 OFFSET $4`,
		string(f.Category), f.LowOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Material, 0, limit)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

// Update writes the allow-listed fields. current_stock is not reachable from here.
func (r *Repo) Update(ctx context.Context, id int64, u Update) (*Material, error) {
	var category *string
	if u.Category != nil {
		c := string(*u.Category)
		category = &c
	}
	m, err := scanMaterial(r.db.QueryRow(ctx, `
		UPDATE materials SET
			material_code = COALESCE($2, material_code),
			material_name = COALESCE($3, material_name),
			category      = COALESCE($4, category),
			unit          = COALESCE($5, unit),
			min_stock     = COALESCE($6, min_stock),
			max_stock     = COALESCE($7, max_stock),
			location      = COALESCE($8, location),
			description   = COALESCE($9, description),
			updated_at    = now()
		WHERE id = $1
		RETURNING `+materialCols,
		id, u.Code, u.Name, category, u.Unit, u.MinStock, u.MaxStock, u.Location, u.Description))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("material %d", id)
	}
	return m, err
}

// LockStock reads current_stock and holds the row lock until the surrounding transaction ends.
func (r *Repo) LockStock(ctx context.Context, id int64) (float64, error) {
	var stock float64
	err := r.db.QueryRow(ctx, `SELECT current_stock FROM materials WHERE id = $1 FOR UPDATE`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errs.NotFound("material %d", id)
	}
	return stock, err
}

func (r *Repo) SetStock(ctx context.Context, id int64, stock float64) error {
	tag, err := r.db.Exec(ctx, `UPDATE materials SET current_stock = $2, updated_at = now() WHERE id = $1`, id, stock)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("material %d", id)
	}
	return nil
}
