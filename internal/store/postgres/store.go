package postgres

import (
	"context"
	"fmt"

	"github.com/Spok95/stockdesk/internal/domain/history"
	"github.com/Spok95/stockdesk/internal/domain/inventory"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	"github.com/Spok95/stockdesk/internal/domain/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/db"
	"github.com/Spok95/stockdesk/internal/store"
)

type repos struct{ q db.Querier }

func (r repos) Materials() store.Materials       { return materials.NewRepo(r.q) }
func (r repos) History() store.History           { return history.NewRepo(r.q) }
func (r repos) Transactions() store.Transactions { return inventory.NewRepo(r.q) }
func (r repos) Stocktaking() store.Stocktaking   { return stocktaking.NewRepo(r.q) }
func (r repos) Users() store.Users               { return users.NewRepo(r.q) }

type Store struct {
	repos
	pool db.Pool
}

func New(pool db.Pool) *Store {
	return &Store{repos: repos{q: pool}, pool: pool}
}

// InTx runs fn inside one database transaction. Row locks taken by fn
// (SELECT ... FOR UPDATE) are held until commit or rollback.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(repos{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
