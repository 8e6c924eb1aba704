package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/infra/db"
)

type Repo struct {
	db db.Querier
}

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const userCols = `id, username, real_name, role, telegram_id, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.RealName, &u.Role, &u.TelegramID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user. An existing username keeps its row but gets the new profile;
// an admin is never demoted.
func (r *Repo) Create(ctx context.Context, n New) (*User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (username, real_name, role, telegram_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (username)
		DO UPDATE SET
			real_name   = EXCLUDED.real_name,
			telegram_id = COALESCE(EXCLUDED.telegram_id, users.telegram_id),
			role        = CASE WHEN users.role = 'system_admin' THEN users.role ELSE EXCLUDED.role END,
			updated_at  = now()
		RETURNING `+userCols,
		n.Username, n.RealName, string(n.Role), n.TelegramID)
	return scanUser(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("user %d", id)
	}
	return u, err
}

func (r *Repo) ListByRoles(ctx context.Context, roles ...Role) ([]User, error) {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	rows, err := r.db.Query(ctx, `SELECT `+userCols+` FROM users WHERE role = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
