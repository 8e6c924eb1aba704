// Package store defines the persistence contract of the engines. An atomic
// unit is whatever runs inside Store.InTx: every write made through the Tx
// handed to fn commits together or not at all.
package store

import (
	"context"
	"time"

	"github.com/Spok95/stockdesk/internal/domain/history"
	"github.com/Spok95/stockdesk/internal/domain/inventory"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	"github.com/Spok95/stockdesk/internal/domain/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/users"
)

type Materials interface {
	Create(ctx context.Context, n materials.New) (*materials.Material, error)
	GetByID(ctx context.Context, id int64) (*materials.Material, error)
	ListByIDs(ctx context.Context, ids []int64) ([]materials.Material, error)
	List(ctx context.Context, f materials.ListFilter) ([]materials.Material, int, error)
	Update(ctx context.Context, id int64, u materials.Update) (*materials.Material, error)
	// LockStock reads current_stock and keeps the row locked for the rest of the atomic unit.
	LockStock(ctx context.Context, id int64) (float64, error)
	SetStock(ctx context.Context, id int64, stock float64) error
}

type History interface {
	Append(ctx context.Context, e *history.Entry) error
	ListByMaterial(ctx context.Context, materialID int64, limit int) ([]history.Entry, error)
	CountByTransaction(ctx context.Context, transactionID int64) (int, error)
}

type Transactions interface {
	Create(ctx context.Context, t *inventory.Transaction) error
	GetByID(ctx context.Context, id int64) (*inventory.Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (*inventory.Transaction, error)
	SetDecision(ctx context.Context, id int64, status inventory.Status, approverID int64, approvedAt *time.Time) error
	Cancel(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, f inventory.ListFilter) ([]inventory.Transaction, int, error)
}

type Stocktaking interface {
	CreateTask(ctx context.Context, t *stocktaking.Task) error
	AddItem(ctx context.Context, it *stocktaking.Item) error
	GetTask(ctx context.Context, id int64) (*stocktaking.Task, error)
	GetTaskForUpdate(ctx context.Context, id int64) (*stocktaking.Task, error)
	GetItem(ctx context.Context, taskID, itemID int64) (*stocktaking.Item, error)
	SaveCount(ctx context.Context, c stocktaking.Count, remark string) error
	ListItems(ctx context.Context, taskID int64) ([]stocktaking.Item, error)
	CountUncounted(ctx context.Context, taskID int64) (int, error)
	Transition(ctx context.Context, id int64, from []stocktaking.Status, to stocktaking.Status) (bool, error)
	Complete(ctx context.Context, id, completedBy int64, at time.Time, remark string) error
	ListTasks(ctx context.Context, f stocktaking.ListFilter) ([]stocktaking.Task, int, error)
}

type Users interface {
	Create(ctx context.Context, n users.New) (*users.User, error)
	GetByID(ctx context.Context, id int64) (*users.User, error)
	ListByRoles(ctx context.Context, roles ...users.Role) ([]users.User, error)
}

// Tx groups the repositories bound to one connection or transaction.
type Tx interface {
	Materials() Materials
	History() History
	Transactions() Transactions
	Stocktaking() Stocktaking
	Users() Users
}

// Store reads outside any atomic unit through its Tx methods and opens one with InTx.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
