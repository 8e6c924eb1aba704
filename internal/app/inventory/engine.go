// Package inventory is the stock-in/stock-out approval engine. A transaction
// is created pending and moves once to approved, rejected or cancelled;
// approval mutates stock and writes the audit row in the same atomic unit.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/stockdesk/internal/app/ledger"
	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/domain/history"
	invdomain "github.com/Spok95/stockdesk/internal/domain/inventory"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/db"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
	"github.com/Spok95/stockdesk/internal/infra/notify"
	"github.com/Spok95/stockdesk/internal/store"
)

// maxCodeAttempts bounds regeneration of a colliding transaction code.
const maxCodeAttempts = 5

// Notifier accepts notices without blocking.
type Notifier interface {
	Publish(n notify.Notice)
}

type Engine struct {
	store    store.Store
	ledger   *ledger.Service
	notifier Notifier
	log      *slog.Logger
	m        *metrics.Metrics
	now      func() time.Time
}

func NewEngine(st store.Store, led *ledger.Service, n Notifier, log *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{store: st, ledger: led, notifier: n, log: log, m: m, now: time.Now}
}

type CreateRequest struct {
	Type       invdomain.Type
	MaterialID int64
	Quantity   float64
	UnitPrice  *decimal.Decimal
	Remark     string
}

type CreateResult struct {
	ID     int64
	Code   string
	Status invdomain.Status
}

// Create submits a pending transaction. The stock check for "out" is advisory:
// approval re-checks against the stock at that moment.
func (e *Engine) Create(ctx context.Context, req CreateRequest, applicant users.User) (CreateResult, error) {
	if !req.Type.Valid() {
		return CreateResult{}, errs.Validation("transaction type must be in or out, got %q", req.Type)
	}
	if !(req.Quantity > 0) || math.IsInf(req.Quantity, 0) {
		return CreateResult{}, errs.Validation("quantity must be greater than zero")
	}
	price := decimal.NullDecimal{}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return CreateResult{}, errs.Validation("unit price must not be negative")
		}
		price = decimal.NewNullDecimal(*req.UnitPrice)
	}

	mat, err := e.store.Materials().GetByID(ctx, req.MaterialID)
	if err != nil {
		return CreateResult{}, err
	}
	if req.Type == invdomain.TypeOut && req.Quantity > mat.CurrentStock {
		return CreateResult{}, &errs.InsufficientStockError{MaterialID: mat.ID, Current: mat.CurrentStock, Requested: req.Quantity}
	}

	t := &invdomain.Transaction{
		Type:        req.Type,
		MaterialID:  mat.ID,
		Quantity:    req.Quantity,
		UnitPrice:   price,
		TotalAmount: invdomain.TotalAmount(req.Quantity, price),
		ApplicantID: applicant.ID,
		Remark:      strings.TrimSpace(req.Remark),
	}
	for attempt := 0; ; attempt++ {
		t.Code = invdomain.NewCode(t.Type, e.now())
		err = e.store.Transactions().Create(ctx, t)
		if !errors.Is(err, invdomain.ErrDuplicateCode) || attempt+1 >= maxCodeAttempts {
			break
		}
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("inventory: create transaction: %w", err)
	}

	e.m.TransactionsCreated.WithLabelValues(string(t.Type)).Inc()
	e.log.Info("transaction created", "transaction_id", t.ID, "code", t.Code, "type", t.Type,
		"material_id", mat.ID, "quantity", t.Quantity, "user_id", applicant.ID)

	e.notifier.Publish(notify.Notice{
		Kind:  notify.KindTransactionPending,
		Title: fmt.Sprintf("Pending %s transaction %s", directionWord(t.Type), t.Code),
		Body:  fmt.Sprintf("Material %s (%s): %g %s, requested by %s", mat.Name, mat.Code, t.Quantity, mat.Unit, applicant.RealName),
		Roles: users.ApproverRoles,
		RefID: t.ID,
	})

	return CreateResult{ID: t.ID, Code: t.Code, Status: t.Status}, nil
}

type DecideResult struct {
	ID     int64
	Status invdomain.Status
}

// Decide approves or rejects a pending transaction. On approve the stock
// change, the history row and the status update commit together; any failure
// leaves the transaction pending and the stock untouched.
func (e *Engine) Decide(ctx context.Context, id int64, action invdomain.Action, approver users.User, remark string) (DecideResult, error) {
	if !action.Valid() {
		return DecideResult{}, errs.Validation("action must be approve or reject, got %q", action)
	}
	if !approver.Role.CanApprove() {
		return DecideResult{}, errs.Forbidden("user %d may not decide transactions", approver.ID)
	}

	var decided invdomain.Transaction
	status := action.Outcome()
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.Transactions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != invdomain.StatusPending {
			return errs.InvalidState("transaction %d is already %s", id, t.Status)
		}

		var approvedAt *time.Time
		if action == invdomain.ActionApprove {
			delta := t.Type.Delta(t.Quantity)
			before, after, err := ledger.ApplyDelta(ctx, tx, t.MaterialID, delta)
			if err != nil {
				return err
			}
			txID, operator := t.ID, approver.ID
			if err := tx.History().Append(ctx, &history.Entry{
				MaterialID:     t.MaterialID,
				TransactionID:  &txID,
				ChangeType:     t.Type.ChangeType(),
				QuantityChange: delta,
				StockBefore:    before,
				StockAfter:     after,
				OperatorID:     &operator,
				Remark:         remark,
			}); err != nil {
				return fmt.Errorf("inventory: append history: %w", err)
			}
			now := e.now()
			approvedAt = &now
		}

		if err := tx.Transactions().SetDecision(ctx, id, status, approver.ID, approvedAt); err != nil {
			return err
		}
		decided = *t
		return nil
	})
	if err != nil {
		return DecideResult{}, err
	}

	e.m.TransactionsDecided.WithLabelValues(string(action)).Inc()
	if action == invdomain.ActionApprove {
		e.m.StockMutations.WithLabelValues(string(decided.Type.ChangeType())).Inc()
	}
	e.log.Info("transaction decided", "transaction_id", id, "status", status, "user_id", approver.ID)

	e.notifier.Publish(notify.Notice{
		Kind:    notify.KindTransactionDecided,
		Title:   fmt.Sprintf("Transaction %s %s", decided.Code, status),
		Body:    remark,
		UserIDs: []int64{decided.ApplicantID},
		RefID:   id,
	})

	return DecideResult{ID: id, Status: status}, nil
}

// Cancel withdraws a pending transaction. Only its applicant may do that.
func (e *Engine) Cancel(ctx context.Context, id int64, requester users.User) error {
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.Transactions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.ApplicantID != requester.ID {
			return errs.Forbidden("transaction %d belongs to another user", id)
		}
		if t.Status != invdomain.StatusPending {
			return errs.InvalidState("transaction %d is already %s", id, t.Status)
		}
		ok, err := tx.Transactions().Cancel(ctx, id)
		if err != nil {
			return fmt.Errorf("inventory: cancel: %w", err)
		}
		if !ok {
			return errs.InvalidState("transaction %d is no longer pending", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info("transaction cancelled", "transaction_id", id, "user_id", requester.ID)
	return nil
}

type Filter struct {
	Page       int
	PageSize   int
	Status     invdomain.Status
	Type       invdomain.Type
	MaterialID int64
}

type Page struct {
	List     []invdomain.Transaction
	Total    int
	Page     int
	PageSize int
}

// ScopeFor narrows reads to what requester may see: regular users their own
// transactions, managers pending ones plus the ones they decided, admins all.
func ScopeFor(requester users.User) (invdomain.Scope, error) {
	switch requester.Role {
	case users.RoleSystemAdmin:
		return invdomain.Scope{}, nil
	case users.RoleInventoryManager:
		return invdomain.Scope{ApproverID: requester.ID}, nil
	case users.RoleRegular:
		return invdomain.Scope{ApplicantID: requester.ID}, nil
	}
	return invdomain.Scope{}, errs.Forbidden("unknown role %q", requester.Role)
}

func (e *Engine) List(ctx context.Context, f Filter, requester users.User) (Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, errs.Validation("unknown status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return Page{}, errs.Validation("unknown type %q", f.Type)
	}
	scope, err := ScopeFor(requester)
	if err != nil {
		return Page{}, err
	}
	page, size := db.NormalizePage(f.Page, f.PageSize)
	list, total, err := e.store.Transactions().List(ctx, invdomain.ListFilter{
		Page:       page,
		PageSize:   size,
		Status:     f.Status,
		Type:       f.Type,
		MaterialID: f.MaterialID,
		Scope:      scope,
	})
	if err != nil {
		return Page{}, fmt.Errorf("inventory: list: %w", err)
	}
	return Page{List: list, Total: total, Page: page, PageSize: size}, nil
}

func (e *Engine) Get(ctx context.Context, id int64, requester users.User) (*invdomain.Transaction, error) {
	t, err := e.store.Transactions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester.Role == users.RoleRegular && t.ApplicantID != requester.ID {
		return nil, errs.Forbidden("transaction %d belongs to another user", id)
	}
	return t, nil
}

// History lists the audit trail of a material, newest first.
func (e *Engine) History(ctx context.Context, materialID int64, limit int) ([]history.Entry, error) {
	return e.ledger.History(ctx, materialID, limit)
}

func directionWord(t invdomain.Type) string {
	if t == invdomain.TypeOut {
		return "stock-out"
	}
	return "stock-in"
}
