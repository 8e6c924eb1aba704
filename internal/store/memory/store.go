// Package memory is a process-local Store used by tests and by the "memory"
// storage driver. It sits on go-memdb: an atomic unit is one write txn, so
// units serialise on the memdb writer lock and an error aborts every change
// made through it. Reads outside a unit work on a snapshot.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/domain/history"
	"github.com/Spok95/stockdesk/internal/domain/inventory"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	"github.com/Spok95/stockdesk/internal/domain/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/db"
	"github.com/Spok95/stockdesk/internal/store"
)

// ErrDuplicateItem mirrors the UNIQUE(task_id, material_id) constraint.
var ErrDuplicateItem = errors.New("memory: material already listed in task")

const (
	tableUsers     = "users"
	tableMaterials = "materials"
	tableTxs       = "inventory_transactions"
	tableHistory   = "stock_history"
	tableTasks     = "stocktaking_tasks"
	tableItems     = "stocktaking_items"
)

// historyRow flattens the nullable transaction id so it can be indexed; zero means none.
type historyRow struct {
	history.Entry
	TxID int64
}

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: "id", Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}}
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableUsers: {
				Name: tableUsers,
				Indexes: map[string]*memdb.IndexSchema{
					"id":       idIndex(),
					"username": {Name: "username", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Username"}},
				},
			},
			tableMaterials: {
				Name:    tableMaterials,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex()},
			},
			tableTxs: {
				Name: tableTxs,
				Indexes: map[string]*memdb.IndexSchema{
					"id":   idIndex(),
					"code": {Name: "code", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Code"}},
				},
			},
			tableHistory: {
				Name: tableHistory,
				Indexes: map[string]*memdb.IndexSchema{
					"id":          idIndex(),
					"material":    {Name: "material", Indexer: &memdb.IntFieldIndex{Field: "MaterialID"}},
					"transaction": {Name: "transaction", Indexer: &memdb.IntFieldIndex{Field: "TxID"}},
				},
			},
			tableTasks: {
				Name: tableTasks,
				Indexes: map[string]*memdb.IndexSchema{
					"id":   idIndex(),
					"code": {Name: "code", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Code"}},
				},
			},
			tableItems: {
				Name: tableItems,
				Indexes: map[string]*memdb.IndexSchema{
					"id":   idIndex(),
					"task": {Name: "task", Indexer: &memdb.IntFieldIndex{Field: "TaskID"}},
					"task_material": {Name: "task_material", Unique: true, Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "TaskID"},
							&memdb.IntFieldIndex{Field: "MaterialID"},
						},
					}},
				},
			},
		},
	}
}

type Store struct {
	db  *memdb.MemDB
	seq atomic.Int64
	now func() time.Time
}

func New() *Store {
	mdb, err := memdb.NewMemDB(schema())
	if err != nil {
		panic(fmt.Sprintf("memory: schema: %v", err))
	}
	return &Store{db: mdb, now: time.Now}
}

// nextID behaves like a postgres sequence: ids taken by an aborted unit are not reused.
func (s *Store) nextID() int64 { return s.seq.Add(1) }

// view implements every repository. Bound to a unit it uses that write txn;
// otherwise reads take a snapshot and each write commits on its own.
type view struct {
	s   *Store
	txn *memdb.Txn
}

func (v view) read() *memdb.Txn {
	if v.txn != nil {
		return v.txn
	}
	return v.s.db.Txn(false)
}

func (v view) write(fn func(txn *memdb.Txn) error) error {
	if v.txn != nil {
		return fn(v.txn)
	}
	txn := v.s.db.Txn(true)
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

func (v view) Materials() store.Materials       { return materialsView{v} }
func (v view) History() store.History           { return historyView{v} }
func (v view) Transactions() store.Transactions { return txView{v} }
func (v view) Stocktaking() store.Stocktaking   { return taskView{v} }
func (v view) Users() store.Users               { return usersView{v} }

func (s *Store) Materials() store.Materials       { return view{s: s}.Materials() }
func (s *Store) History() store.History           { return view{s: s}.History() }
func (s *Store) Transactions() store.Transactions { return view{s: s}.Transactions() }
func (s *Store) Stocktaking() store.Stocktaking   { return view{s: s}.Stocktaking() }
func (s *Store) Users() store.Users               { return view{s: s}.Users() }

// InTx runs fn inside one write txn. fn must only write through the Tx it is given.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := fn(view{s: s, txn: txn}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

var _ store.Store = (*Store)(nil)

func first[T any](txn *memdb.Txn, table, index string, args ...any) (*T, error) {
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: %s by %s: %w", table, index, err)
	}
	if raw == nil {
		return nil, nil
	}
	out := *raw.(*T)
	return &out, nil
}

func all[T any](txn *memdb.Txn, table, index string, args ...any) ([]T, error) {
	it, err := txn.Get(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: %s by %s: %w", table, index, err)
	}
	var out []T
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*T))
	}
	return out, nil
}

func insert[T any](txn *memdb.Txn, table string, row T) error {
	if err := txn.Insert(table, &row); err != nil {
		return fmt.Errorf("memory: insert %s: %w", table, err)
	}
	return nil
}

// users

type usersView struct{ view }

func (v usersView) Create(_ context.Context, n users.New) (*users.User, error) {
	var out users.User
	err := v.write(func(txn *memdb.Txn) error {
		now := v.s.now()
		u, err := first[users.User](txn, tableUsers, "username", n.Username)
		if err != nil {
			return err
		}
		if u != nil {
			u.RealName = n.RealName
			if n.TelegramID != nil {
				u.TelegramID = n.TelegramID
			}
			if u.Role != users.RoleSystemAdmin {
				u.Role = n.Role
			}
			u.UpdatedAt = now
			out = *u
			return insert(txn, tableUsers, out)
		}
		out = users.User{
			ID:         v.s.nextID(),
			Username:   n.Username,
			RealName:   n.RealName,
			Role:       n.Role,
			TelegramID: n.TelegramID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return insert(txn, tableUsers, out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (v usersView) GetByID(_ context.Context, id int64) (*users.User, error) {
	u, err := first[users.User](v.read(), tableUsers, "id", id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errs.NotFound("user %d", id)
	}
	return u, nil
}

func (v usersView) ListByRoles(_ context.Context, roles ...users.Role) ([]users.User, error) {
	list, err := all[users.User](v.read(), tableUsers, "id")
	if err != nil {
		return nil, err
	}
	var out []users.User
	for _, u := range list {
		if slices.Contains(roles, u.Role) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// materials

type materialsView struct{ view }

func (v materialsView) get(txn *memdb.Txn, id int64) (*materials.Material, error) {
	m, err := first[materials.Material](txn, tableMaterials, "id", id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errs.NotFound("material %d", id)
	}
	return m, nil
}

func (v materialsView) Create(_ context.Context, n materials.New) (*materials.Material, error) {
	now := v.s.now()
	m := materials.Material{
		ID:           v.s.nextID(),
		Code:         n.Code,
		Name:         n.Name,
		Category:     n.Category,
		Unit:         n.Unit,
		CurrentStock: n.InitialStock,
		MinStock:     n.MinStock,
		MaxStock:     n.MaxStock,
		Location:     n.Location,
		Description:  n.Description,
		CreatedBy:    n.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := v.write(func(txn *memdb.Txn) error { return insert(txn, tableMaterials, m) }); err != nil {
		return nil, err
	}
	return &m, nil
}

func (v materialsView) GetByID(_ context.Context, id int64) (*materials.Material, error) {
	return v.get(v.read(), id)
}

func (v materialsView) ListByIDs(_ context.Context, ids []int64) ([]materials.Material, error) {
	txn := v.read()
	var out []materials.Material
	for _, id := range ids {
		m, err := first[materials.Material](txn, tableMaterials, "id", id)
		if err != nil {
			return nil, err
		}
		if m != nil && !slices.ContainsFunc(out, func(x materials.Material) bool { return x.ID == id }) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v materialsView) List(_ context.Context, f materials.ListFilter) ([]materials.Material, int, error) {
	list, err := all[materials.Material](v.read(), tableMaterials, "id")
	if err != nil {
		return nil, 0, err
	}
	var out []materials.Material
	for _, m := range list {
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		if f.LowOnly && !m.LowStock() {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Page, f.PageSize), len(out), nil
}

func (v materialsView) Update(_ context.Context, id int64, u materials.Update) (*materials.Material, error) {
	var out materials.Material
	err := v.write(func(txn *memdb.Txn) error {
		m, err := v.get(txn, id)
		if err != nil {
			return err
		}
		u.Apply(m)
		m.UpdatedAt = v.s.now()
		out = *m
		return insert(txn, tableMaterials, out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockStock reads the stock; inside a unit the memdb writer lock already excludes other writers.
func (v materialsView) LockStock(_ context.Context, id int64) (float64, error) {
	m, err := v.get(v.read(), id)
	if err != nil {
		return 0, err
	}
	return m.CurrentStock, nil
}

func (v materialsView) SetStock(_ context.Context, id int64, stock float64) error {
	return v.write(func(txn *memdb.Txn) error {
		m, err := v.get(txn, id)
		if err != nil {
			return err
		}
		m.CurrentStock = stock
		m.UpdatedAt = v.s.now()
		return insert(txn, tableMaterials, *m)
	})
}

// history

type historyView struct{ view }

func (v historyView) Append(_ context.Context, e *history.Entry) error {
	e.ID = v.s.nextID()
	e.CreatedAt = v.s.now()
	row := historyRow{Entry: *e}
	if e.TransactionID != nil {
		row.TxID = *e.TransactionID
	}
	return v.write(func(txn *memdb.Txn) error { return insert(txn, tableHistory, row) })
}

func (v historyView) ListByMaterial(_ context.Context, materialID int64, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = db.MaxPageSize
	}
	rows, err := all[historyRow](v.read(), tableHistory, "material", materialID)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
	out := make([]history.Entry, 0, min(limit, len(rows)))
	for _, r := range rows[:min(limit, len(rows))] {
		out = append(out, r.Entry)
	}
	return out, nil
}

func (v historyView) CountByTransaction(_ context.Context, transactionID int64) (int, error) {
	rows, err := all[historyRow](v.read(), tableHistory, "transaction", transactionID)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// inventory transactions

type txView struct{ view }

func (v txView) joined(txn *memdb.Txn, t inventory.Transaction) (inventory.Transaction, error) {
	m, err := first[materials.Material](txn, tableMaterials, "id", t.MaterialID)
	if err != nil {
		return t, err
	}
	if m != nil {
		t.MaterialCode, t.MaterialName, t.MaterialUnit = m.Code, m.Name, m.Unit
	}
	u, err := first[users.User](txn, tableUsers, "id", t.ApplicantID)
	if err != nil {
		return t, err
	}
	if u != nil {
		t.ApplicantName = u.RealName
	}
	if t.ApproverID != nil {
		a, err := first[users.User](txn, tableUsers, "id", *t.ApproverID)
		if err != nil {
			return t, err
		}
		if a != nil {
			t.ApproverName = a.RealName
		}
	}
	return t, nil
}

func (v txView) get(txn *memdb.Txn, id int64) (*inventory.Transaction, error) {
	t, err := first[inventory.Transaction](txn, tableTxs, "id", id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.NotFound("transaction %d", id)
	}
	return t, nil
}

func (v txView) Create(_ context.Context, t *inventory.Transaction) error {
	return v.write(func(txn *memdb.Txn) error {
		existing, err := first[inventory.Transaction](txn, tableTxs, "code", t.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return inventory.ErrDuplicateCode
		}
		now := v.s.now()
		t.ID = v.s.nextID()
		t.Status = inventory.StatusPending
		t.ApproverID, t.ApprovedAt = nil, nil
		t.CreatedAt, t.UpdatedAt = now, now
		row := *t
		row.MaterialCode, row.MaterialName, row.MaterialUnit, row.ApplicantName, row.ApproverName = "", "", "", "", ""
		return insert(txn, tableTxs, row)
	})
}

func (v txView) GetByID(_ context.Context, id int64) (*inventory.Transaction, error) {
	txn := v.read()
	t, err := v.get(txn, id)
	if err != nil {
		return nil, err
	}
	out, err := v.joined(txn, *t)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (v txView) GetForUpdate(_ context.Context, id int64) (*inventory.Transaction, error) {
	return v.get(v.read(), id)
}

func (v txView) SetDecision(_ context.Context, id int64, status inventory.Status, approverID int64, approvedAt *time.Time) error {
	return v.write(func(txn *memdb.Txn) error {
		t, err := first[inventory.Transaction](txn, tableTxs, "id", id)
		if err != nil {
			return err
		}
		if t == nil || t.Status != inventory.StatusPending {
			return errs.InvalidState("transaction %d is no longer pending", id)
		}
		t.Status = status
		t.ApproverID = &approverID
		if approvedAt != nil {
			at := *approvedAt
			t.ApprovedAt = &at
		}
		t.UpdatedAt = v.s.now()
		return insert(txn, tableTxs, *t)
	})
}

func (v txView) Cancel(_ context.Context, id int64) (bool, error) {
	done := false
	err := v.write(func(txn *memdb.Txn) error {
		t, err := first[inventory.Transaction](txn, tableTxs, "id", id)
		if err != nil || t == nil || t.Status != inventory.StatusPending {
			return err
		}
		t.Status = inventory.StatusCancelled
		t.UpdatedAt = v.s.now()
		done = true
		return insert(txn, tableTxs, *t)
	})
	return done && err == nil, err
}

func (v txView) List(_ context.Context, f inventory.ListFilter) ([]inventory.Transaction, int, error) {
	txn := v.read()
	list, err := all[inventory.Transaction](txn, tableTxs, "id")
	if err != nil {
		return nil, 0, err
	}
	var out []inventory.Transaction
	for _, t := range list {
		if f.Scope.ApplicantID != 0 && t.ApplicantID != f.Scope.ApplicantID {
			continue
		}
		if f.Scope.ApproverID != 0 && t.Status != inventory.StatusPending &&
			(t.ApproverID == nil || *t.ApproverID != f.Scope.ApproverID) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.MaterialID != 0 && t.MaterialID != f.MaterialID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	total := len(out)
	out = page(out, f.Page, f.PageSize)
	for i := range out {
		if out[i], err = v.joined(txn, out[i]); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// stocktaking

type taskView struct{ view }

func (v taskView) withStats(txn *memdb.Txn, t stocktaking.Task) (stocktaking.Task, error) {
	items, err := all[stocktaking.Item](txn, tableItems, "task", t.ID)
	if err != nil {
		return t, err
	}
	t.ItemCount, t.CountedCount = len(items), 0
	for _, it := range items {
		if it.Counted() {
			t.CountedCount++
		}
	}
	u, err := first[users.User](txn, tableUsers, "id", t.CreatorID)
	if err != nil {
		return t, err
	}
	if u != nil {
		t.CreatorName = u.RealName
	}
	return t, nil
}

func (v taskView) withMaterial(txn *memdb.Txn, it stocktaking.Item) (stocktaking.Item, error) {
	m, err := first[materials.Material](txn, tableMaterials, "id", it.MaterialID)
	if err != nil {
		return it, err
	}
	if m != nil {
		it.MaterialCode, it.MaterialName, it.MaterialUnit, it.MaterialCategory = m.Code, m.Name, m.Unit, string(m.Category)
	}
	return it, nil
}

func (v taskView) get(txn *memdb.Txn, id int64) (*stocktaking.Task, error) {
	t, err := first[stocktaking.Task](txn, tableTasks, "id", id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errs.NotFound("stocktaking task %d", id)
	}
	return t, nil
}

func (v taskView) CreateTask(_ context.Context, t *stocktaking.Task) error {
	return v.write(func(txn *memdb.Txn) error {
		existing, err := first[stocktaking.Task](txn, tableTasks, "code", t.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return stocktaking.ErrDuplicateCode
		}
		now := v.s.now()
		t.ID = v.s.nextID()
		t.Status = stocktaking.StatusDraft
		t.CreatedAt, t.UpdatedAt = now, now
		return insert(txn, tableTasks, *t)
	})
}

func (v taskView) AddItem(_ context.Context, it *stocktaking.Item) error {
	return v.write(func(txn *memdb.Txn) error {
		existing, err := first[stocktaking.Item](txn, tableItems, "task_material", it.TaskID, it.MaterialID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateItem
		}
		now := v.s.now()
		it.ID = v.s.nextID()
		it.CreatedAt, it.UpdatedAt = now, now
		return insert(txn, tableItems, stocktaking.Item{
			ID:         it.ID,
			TaskID:     it.TaskID,
			MaterialID: it.MaterialID,
			BookStock:  it.BookStock,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
}

func (v taskView) GetTask(_ context.Context, id int64) (*stocktaking.Task, error) {
	txn := v.read()
	t, err := v.get(txn, id)
	if err != nil {
		return nil, err
	}
	out, err := v.withStats(txn, *t)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (v taskView) GetTaskForUpdate(_ context.Context, id int64) (*stocktaking.Task, error) {
	return v.get(v.read(), id)
}

func (v taskView) GetItem(_ context.Context, taskID, itemID int64) (*stocktaking.Item, error) {
	txn := v.read()
	it, err := first[stocktaking.Item](txn, tableItems, "id", itemID)
	if err != nil {
		return nil, err
	}
	if it == nil || it.TaskID != taskID {
		return nil, errs.NotFound("item %d in stocktaking task %d", itemID, taskID)
	}
	out, err := v.withMaterial(txn, *it)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (v taskView) SaveCount(_ context.Context, c stocktaking.Count, remark string) error {
	return v.write(func(txn *memdb.Txn) error {
		it, err := first[stocktaking.Item](txn, tableItems, "id", c.ItemID)
		if err != nil {
			return err
		}
		if it == nil {
			return errs.NotFound("stocktaking item %d", c.ItemID)
		}
		actual, dt := c.ActualStock, c.DifferenceType
		it.ActualStock = &actual
		it.Difference = c.Difference
		it.DifferenceType = &dt
		it.Remark = remark
		it.UpdatedAt = v.s.now()
		return insert(txn, tableItems, *it)
	})
}

func (v taskView) ListItems(_ context.Context, taskID int64) ([]stocktaking.Item, error) {
	txn := v.read()
	items, err := all[stocktaking.Item](txn, tableItems, "task", taskID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	for i := range items {
		if items[i], err = v.withMaterial(txn, items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (v taskView) CountUncounted(_ context.Context, taskID int64) (int, error) {
	items, err := all[stocktaking.Item](v.read(), tableItems, "task", taskID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if !it.Counted() {
			n++
		}
	}
	return n, nil
}

func (v taskView) Transition(_ context.Context, id int64, from []stocktaking.Status, to stocktaking.Status) (bool, error) {
	done := false
	err := v.write(func(txn *memdb.Txn) error {
		t, err := first[stocktaking.Task](txn, tableTasks, "id", id)
		if err != nil || t == nil || !slices.Contains(from, t.Status) {
			return err
		}
		t.Status = to
		t.UpdatedAt = v.s.now()
		done = true
		return insert(txn, tableTasks, *t)
	})
	return done && err == nil, err
}

func (v taskView) Complete(_ context.Context, id, completedBy int64, at time.Time, remark string) error {
	return v.write(func(txn *memdb.Txn) error {
		t, err := first[stocktaking.Task](txn, tableTasks, "id", id)
		if err != nil {
			return err
		}
		if t == nil || t.Status.Closed() {
			return errs.InvalidState("stocktaking task %d is closed", id)
		}
		t.Status = stocktaking.StatusCompleted
		t.CompletedBy = &completedBy
		t.CompletedAt = &at
		t.Remark = remark
		t.UpdatedAt = v.s.now()
		return insert(txn, tableTasks, *t)
	})
}

func (v taskView) ListTasks(_ context.Context, f stocktaking.ListFilter) ([]stocktaking.Task, int, error) {
	txn := v.read()
	list, err := all[stocktaking.Task](txn, tableTasks, "id")
	if err != nil {
		return nil, 0, err
	}
	var out []stocktaking.Task
	for _, t := range list {
		if f.CreatorID != 0 && t.CreatorID != f.CreatorID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	total := len(out)
	out = page(out, f.Page, f.PageSize)
	for i := range out {
		if out[i], err = v.withStats(txn, out[i]); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func page[T any](list []T, p, size int) []T {
	limit, offset := db.PageBounds(p, size)
	if offset >= len(list) {
		return []T{}
	}
	return list[offset:min(offset+limit, len(list))]
}
