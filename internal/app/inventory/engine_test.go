package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/stockdesk/internal/app/ledger"
	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/domain/history"
	invdomain "github.com/Spok95/stockdesk/internal/domain/inventory"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
	"github.com/Spok95/stockdesk/internal/infra/notify"
	"github.com/Spok95/stockdesk/internal/store/memory"
)

type recorder struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recorder) Publish(n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

type fixture struct {
	st      *memory.Store
	led     *ledger.Service
	eng     *Engine
	rec     *recorder
	admin   users.User
	manager users.User
	alice   users.User
	bob     users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.Nop()
	st := memory.New()
	f := &fixture{st: st, led: ledger.New(st, log, m), rec: &recorder{}}
	f.eng = NewEngine(st, f.led, f.rec, log, m)

	mk := func(name string, role users.Role) users.User {
		u, err := st.Users().Create(ctx, users.New{Username: name, RealName: name, Role: role})
		require.NoError(t, err)
		return *u
	}
	f.admin = mk("admin", users.RoleSystemAdmin)
	f.manager = mk("manager", users.RoleInventoryManager)
	f.alice = mk("alice", users.RoleRegular)
	f.bob = mk("bob", users.RoleRegular)
	return f
}

func (f *fixture) material(t *testing.T, stock float64) *materials.Material {
	t.Helper()
	m, err := f.led.CreateMaterial(context.Background(), materials.New{
		Code: "M-1", Name: "Sulfuric acid", Category: materials.CategoryChemical, Unit: "kg", InitialStock: stock,
	}, f.admin)
	require.NoError(t, err)
	return m
}

func (f *fixture) create(t *testing.T, typ invdomain.Type, materialID int64, qty float64, by users.User) CreateResult {
	t.Helper()
	res, err := f.eng.Create(context.Background(), CreateRequest{Type: typ, MaterialID: materialID, Quantity: qty}, by)
	require.NoError(t, err)
	return res
}

func (f *fixture) stock(t *testing.T, id int64) float64 {
	t.Helper()
	m, err := f.st.Materials().GetByID(context.Background(), id)
	require.NoError(t, err)
	return m.CurrentStock
}

func (f *fixture) historyOf(t *testing.T, txID int64) int {
	t.Helper()
	n, err := f.st.History().CountByTransaction(context.Background(), txID)
	require.NoError(t, err)
	return n
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	mat := f.material(t, 10)
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"bad type", CreateRequest{Type: "move", MaterialID: mat.ID, Quantity: 1}, errs.ErrValidation},
		{"zero quantity", CreateRequest{Type: invdomain.TypeIn, MaterialID: mat.ID, Quantity: 0}, errs.ErrValidation},
		{"negative quantity", CreateRequest{Type: invdomain.TypeIn, MaterialID: mat.ID, Quantity: -3}, errs.ErrValidation},
		{"negative price", CreateRequest{Type: invdomain.TypeIn, MaterialID: mat.ID, Quantity: 1, UnitPrice: &negative}, errs.ErrValidation},
		{"missing material", CreateRequest{Type: invdomain.TypeIn, MaterialID: 9999, Quantity: 1}, errs.ErrNotFound},
		{"out above stock", CreateRequest{Type: invdomain.TypeOut, MaterialID: mat.ID, Quantity: 11}, errs.ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Create(context.Background(), tt.req, f.alice)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.rec.notices)
}

func TestCreatePendingWithCodeAndAmount(t *testing.T) {
	f := newFixture(t)
	mat := f.material(t, 0)
	price := decimal.RequireFromString("2.5")

	res, err := f.eng.Create(context.Background(), CreateRequest{
		Type: invdomain.TypeIn, MaterialID: mat.ID, Quantity: 4, UnitPrice: &price, Remark: "  supplier A ",
	}, f.alice)
	require.NoError(t, err)
	assert.Equal(t, invdomain.StatusPending, res.Status)
	assert.Regexp(t, `^IN\d{16}$`, res.Code)

	tx, err := f.eng.Get(context.Background(), res.ID, f.alice)
	require.NoError(t, err)
	require.True(t, tx.TotalAmount.Valid)
	assert.True(t, tx.TotalAmount.Decimal.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "supplier A", tx.Remark)
	assert.Equal(t, "Sulfuric acid", tx.MaterialName)
	assert.Equal(t, "alice", tx.ApplicantName)
	assert.Equal(t, float64(0), f.stock(t, mat.ID), "creation never touches stock")

	require.Len(t, f.rec.notices, 1)
	n := f.rec.notices[0]
	assert.Equal(t, notify.KindTransactionPending, n.Kind)
	assert.Equal(t, users.ApproverRoles, n.Roles)
	assert.Equal(t, res.ID, n.RefID)
}

func TestApproveInAddsStockAndOneHistoryRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 100)
	res := f.create(t, invdomain.TypeIn, mat.ID, 50, f.alice)

	out, err := f.eng.Decide(ctx, res.ID, invdomain.ActionApprove, f.manager, "ok")
	require.NoError(t, err)
	assert.Equal(t, invdomain.StatusApproved, out.Status)
	assert.Equal(t, float64(150), f.stock(t, mat.ID))

	entries, err := f.eng.History(ctx, mat.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2, "initial stock row is not tied to the transaction")
	last := entries[0]
	require.NotNil(t, last.TransactionID)
	assert.Equal(t, res.ID, *last.TransactionID)
	assert.Equal(t, history.ChangeIn, last.ChangeType)
	assert.Equal(t, float64(50), last.StockAfter-last.StockBefore)
	assert.Equal(t, "ok", last.Remark)
	assert.Equal(t, f.manager.ID, *last.OperatorID)

	tx, err := f.eng.Get(ctx, res.ID, f.admin)
	require.NoError(t, err)
	require.NotNil(t, tx.ApproverID)
	assert.Equal(t, f.manager.ID, *tx.ApproverID)
	assert.NotNil(t, tx.ApprovedAt)
	assert.Equal(t, "manager", tx.ApproverName)
}

func TestApproveOutFailsWhenStockDroppedMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 60)
	first := f.create(t, invdomain.TypeOut, mat.ID, 50, f.alice)
	second := f.create(t, invdomain.TypeOut, mat.ID, 50, f.bob)

	_, err := f.eng.Decide(ctx, first.ID, invdomain.ActionApprove, f.manager, "")
	require.NoError(t, err)
	assert.Equal(t, float64(10), f.stock(t, mat.ID))

	_, err = f.eng.Decide(ctx, second.ID, invdomain.ActionApprove, f.manager, "")
	var insufficient *errs.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, float64(10), insufficient.Current)
	assert.Equal(t, float64(10), f.stock(t, mat.ID))
	assert.Zero(t, f.historyOf(t, second.ID))

	tx, err := f.eng.Get(ctx, second.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, invdomain.StatusPending, tx.Status)
	assert.Nil(t, tx.ApproverID)
}

func TestDecideTerminalIsInvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 100)

	approved := f.create(t, invdomain.TypeIn, mat.ID, 5, f.alice)
	_, err := f.eng.Decide(ctx, approved.ID, invdomain.ActionApprove, f.manager, "")
	require.NoError(t, err)

	rejected := f.create(t, invdomain.TypeIn, mat.ID, 5, f.alice)
	out, err := f.eng.Decide(ctx, rejected.ID, invdomain.ActionReject, f.manager, "no")
	require.NoError(t, err)
	assert.Equal(t, invdomain.StatusRejected, out.Status)

	for _, id := range []int64{approved.ID, rejected.ID} {
		for _, action := range []invdomain.Action{invdomain.ActionApprove, invdomain.ActionReject} {
			_, err := f.eng.Decide(ctx, id, action, f.admin, "")
			require.ErrorIs(t, err, errs.ErrInvalidState)
		}
	}
	assert.Equal(t, 1, f.historyOf(t, approved.ID))
	assert.Zero(t, f.historyOf(t, rejected.ID))
	assert.Equal(t, float64(105), f.stock(t, mat.ID))
}

func TestRejectLeavesStockAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 20)
	res := f.create(t, invdomain.TypeOut, mat.ID, 5, f.alice)

	_, err := f.eng.Decide(ctx, res.ID, invdomain.ActionReject, f.manager, "")
	require.NoError(t, err)
	assert.Equal(t, float64(20), f.stock(t, mat.ID))

	tx, err := f.eng.Get(ctx, res.ID, f.alice)
	require.NoError(t, err)
	assert.Nil(t, tx.ApprovedAt)
	require.NotNil(t, tx.ApproverID)
	assert.Equal(t, f.manager.ID, *tx.ApproverID)
}

func TestDecideRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 20)
	res := f.create(t, invdomain.TypeIn, mat.ID, 5, f.alice)

	_, err := f.eng.Decide(ctx, res.ID, "maybe", f.manager, "")
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.eng.Decide(ctx, res.ID, invdomain.ActionApprove, f.bob, "")
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.eng.Decide(ctx, 4242, invdomain.ActionApprove, f.manager, "")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 20)

	res := f.create(t, invdomain.TypeIn, mat.ID, 5, f.alice)
	require.ErrorIs(t, f.eng.Cancel(ctx, res.ID, f.bob), errs.ErrForbidden)
	require.ErrorIs(t, f.eng.Cancel(ctx, res.ID, f.admin), errs.ErrForbidden)
	require.NoError(t, f.eng.Cancel(ctx, res.ID, f.alice))
	require.ErrorIs(t, f.eng.Cancel(ctx, res.ID, f.alice), errs.ErrInvalidState)

	_, err := f.eng.Decide(ctx, res.ID, invdomain.ActionApprove, f.manager, "")
	require.ErrorIs(t, err, errs.ErrInvalidState)
	assert.Equal(t, float64(20), f.stock(t, mat.ID))

	decided := f.create(t, invdomain.TypeIn, mat.ID, 5, f.alice)
	_, err = f.eng.Decide(ctx, decided.ID, invdomain.ActionApprove, f.manager, "")
	require.NoError(t, err)
	require.ErrorIs(t, f.eng.Cancel(ctx, decided.ID, f.alice), errs.ErrInvalidState)

	require.ErrorIs(t, f.eng.Cancel(ctx, 4242, f.alice), errs.ErrNotFound)
}

func TestStockInThenOutScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 100)

	in := f.create(t, invdomain.TypeIn, mat.ID, 50, f.alice)
	_, err := f.eng.Decide(ctx, in.ID, invdomain.ActionApprove, f.manager, "")
	require.NoError(t, err)
	assert.Equal(t, float64(150), f.stock(t, mat.ID))

	_, err = f.eng.Create(ctx, CreateRequest{Type: invdomain.TypeOut, MaterialID: mat.ID, Quantity: 200}, f.alice)
	require.ErrorIs(t, err, errs.ErrInsufficientStock)

	out := f.create(t, invdomain.TypeOut, mat.ID, 100, f.alice)
	_, err = f.eng.Decide(ctx, out.ID, invdomain.ActionApprove, f.manager, "")
	require.NoError(t, err)
	assert.Equal(t, float64(50), f.stock(t, mat.ID))
}

func TestConcurrentApprovalsNeverGoNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 10)

	const n = 25
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = f.create(t, invdomain.TypeOut, mat.ID, 1, f.alice).ID
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		approved     int
		insufficient int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.eng.Decide(ctx, id, invdomain.ActionApprove, f.manager, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			case errors.Is(err, errs.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 10, approved)
	assert.Equal(t, n-10, insufficient)
	assert.Equal(t, float64(0), f.stock(t, mat.ID))

	entries, err := f.eng.History(ctx, mat.ID, 100)
	require.NoError(t, err)
	require.Len(t, entries, approved+1)
	for i := 0; i < approved; i++ {
		e := entries[i]
		assert.Equal(t, float64(-1), e.StockAfter-e.StockBefore)
		assert.Equal(t, e.StockBefore, entries[i+1].StockAfter, "history chain must be gapless")
	}
}

func TestListAndGetScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mat := f.material(t, 100)

	a1 := f.create(t, invdomain.TypeIn, mat.ID, 1, f.alice)
	a2 := f.create(t, invdomain.TypeIn, mat.ID, 2, f.alice)
	b1 := f.create(t, invdomain.TypeIn, mat.ID, 3, f.bob)
	b2 := f.create(t, invdomain.TypeIn, mat.ID, 4, f.bob)

	_, err := f.eng.Decide(ctx, a1.ID, invdomain.ActionApprove, f.manager, "")
	require.NoError(t, err)
	_, err = f.eng.Decide(ctx, b1.ID, invdomain.ActionApprove, f.admin, "")
	require.NoError(t, err)

	ids := func(p Page) []int64 {
		var out []int64
		for _, tx := range p.List {
			out = append(out, tx.ID)
		}
		return out
	}

	page, err := f.eng.List(ctx, Filter{}, f.alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a1.ID, a2.ID}, ids(page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)

	page, err = f.eng.List(ctx, Filter{}, f.manager)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a1.ID, a2.ID, b2.ID}, ids(page), "pending plus own decisions")

	page, err = f.eng.List(ctx, Filter{}, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	page, err = f.eng.List(ctx, Filter{Status: invdomain.StatusApproved, PageSize: 1000}, f.admin)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a1.ID, b1.ID}, ids(page))
	assert.Equal(t, 100, page.PageSize)

	page, err = f.eng.List(ctx, Filter{Page: 2, PageSize: 3}, f.admin)
	require.NoError(t, err)
	assert.Len(t, page.List, 1)
	assert.Equal(t, 4, page.Total)

	_, err = f.eng.List(ctx, Filter{Status: "lost"}, f.admin)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.eng.Get(ctx, b2.ID, f.alice)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.eng.Get(ctx, b2.ID, f.manager)
	require.NoError(t, err)
	_, err = f.eng.Get(ctx, 4242, f.admin)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

type failingSink struct{}

func (failingSink) Deliver(context.Context, []users.User, notify.Notice) error {
	return errors.New("telegram is down")
}

func TestNotificationFailureDoesNotFailCreate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.Nop()
	st := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := notify.NewDispatcher(st.Users(), log, m, 1, failingSink{})
	go func() { _ = d.Run(ctx) }()
	eng := NewEngine(st, ledger.New(st, log, m), d, log, m)

	u, err := st.Users().Create(ctx, users.New{Username: "alice", RealName: "Alice", Role: users.RoleRegular})
	require.NoError(t, err)
	mat, err := st.Materials().Create(ctx, materials.New{Code: "X", Name: "X", Category: materials.CategoryMetal, Unit: "pcs"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := eng.Create(ctx, CreateRequest{Type: invdomain.TypeIn, MaterialID: mat.ID, Quantity: 1}, *u)
		require.NoError(t, err)
	}
}
