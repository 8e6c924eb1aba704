// Package stocktaking runs physical count tasks: a task snapshots the book
// stock of its materials, collects counts and, on completion, optionally
// reconciles every material to its counted value.
package stocktaking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Spok95/stockdesk/internal/app/ledger"
	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/domain/history"
	stdomain "github.com/Spok95/stockdesk/internal/domain/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/db"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
	"github.com/Spok95/stockdesk/internal/infra/notify"
	"github.com/Spok95/stockdesk/internal/store"
)

const (
	maxCodeAttempts = 5
	transitionWait  = 5 * time.Second
)

type Notifier interface {
	Publish(n notify.Notice)
}

type Engine struct {
	store    store.Store
	notifier Notifier
	log      *slog.Logger
	m        *metrics.Metrics
	now      func() time.Time

	bg sync.WaitGroup
}

func NewEngine(st store.Store, n Notifier, log *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{store: st, notifier: n, log: log, m: m, now: time.Now}
}

// Wait blocks until background status transitions have finished.
func (e *Engine) Wait() { e.bg.Wait() }

type CreateTaskRequest struct {
	Name        string
	StartDate   *time.Time
	EndDate     *time.Time
	MaterialIDs []int64
	Remark      string
}

type CreateTaskResult struct {
	ID        int64
	Code      string
	ItemCount int
}

// CreateTask opens a draft task with one item per existing material in
// req.MaterialIDs. Unknown ids are skipped; none resolving is NotFound.
func (e *Engine) CreateTask(ctx context.Context, req CreateTaskRequest, creator users.User) (CreateTaskResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return CreateTaskResult{}, errs.Validation("task name is required")
	}
	if len(req.MaterialIDs) == 0 {
		return CreateTaskResult{}, errs.Validation("at least one material is required")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return CreateTaskResult{}, errs.Validation("end date is before start date")
	}
	ids := slices.Clone(req.MaterialIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var res CreateTaskResult
	var err error
	for attempt := 0; ; attempt++ {
		res, err = e.createTask(ctx, name, req, ids, creator)
		if !errors.Is(err, stdomain.ErrDuplicateCode) || attempt+1 >= maxCodeAttempts {
			break
		}
	}
	if err != nil {
		return CreateTaskResult{}, err
	}
	e.log.Info("stocktaking task created", "task_id", res.ID, "code", res.Code, "items", res.ItemCount,
		"requested", len(ids), "user_id", creator.ID)
	return res, nil
}

func (e *Engine) createTask(ctx context.Context, name string, req CreateTaskRequest, ids []int64, creator users.User) (CreateTaskResult, error) {
	var res CreateTaskResult
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		mats, err := tx.Materials().ListByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("stocktaking: load materials: %w", err)
		}
		if len(mats) == 0 {
			return errs.NotFound("none of the %d materials exist", len(ids))
		}

		task := &stdomain.Task{
			Code:      stdomain.NewTaskCode(e.now()),
			Name:      name,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			CreatorID: creator.ID,
			Remark:    strings.TrimSpace(req.Remark),
		}
		if err := tx.Stocktaking().CreateTask(ctx, task); err != nil {
			return err
		}
		for _, m := range mats {
			it := &stdomain.Item{TaskID: task.ID, MaterialID: m.ID, BookStock: m.CurrentStock}
			if err := tx.Stocktaking().AddItem(ctx, it); err != nil {
				return fmt.Errorf("stocktaking: add item for material %d: %w", m.ID, err)
			}
		}
		res = CreateTaskResult{ID: task.ID, Code: task.Code, ItemCount: len(mats)}
		return nil
	})
	return res, err
}

// RecordCount stores the counted stock of one item. Counting again overwrites.
// A draft task is moved to in_progress afterwards, off the caller's path.
func (e *Engine) RecordCount(ctx context.Context, taskID, itemID int64, actual float64, remark string) (stdomain.Count, error) {
	if math.IsNaN(actual) || math.IsInf(actual, 0) || actual < 0 {
		return stdomain.Count{}, errs.Validation("actual stock must be a non-negative number")
	}

	var (
		c      stdomain.Count
		status stdomain.Status
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		task, err := tx.Stocktaking().GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status.Closed() {
			return errs.InvalidState("stocktaking task %d is %s", taskID, task.Status)
		}
		it, err := tx.Stocktaking().GetItem(ctx, taskID, itemID)
		if err != nil {
			return err
		}
		c = it.Evaluate(actual)
		status = task.Status
		return tx.Stocktaking().SaveCount(ctx, c, strings.TrimSpace(remark))
	})
	if err != nil {
		return stdomain.Count{}, err
	}

	if status == stdomain.StatusDraft {
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transitionWait)
			defer cancel()
			if _, err := e.StartCounting(tctx, taskID); err != nil {
				e.log.Warn("start counting failed", "task_id", taskID, "err", err)
			}
		}()
	}
	return c, nil
}

// StartCounting moves a draft task to in_progress and reports whether it did.
func (e *Engine) StartCounting(ctx context.Context, taskID int64) (bool, error) {
	return e.store.Stocktaking().Transition(ctx, taskID, []stdomain.Status{stdomain.StatusDraft}, stdomain.StatusInProgress)
}

type CompleteRequest struct {
	UpdateStock bool
	Remark      string
}

// Complete closes a fully counted task. With UpdateStock every material is
// set to its counted value and an adjust row is appended per item, all in the
// same atomic unit as the status change.
func (e *Engine) Complete(ctx context.Context, taskID int64, req CompleteRequest, operator users.User) (stdomain.Report, error) {
	var (
		items []stdomain.Item
		task  *stdomain.Task
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		task, err = tx.Stocktaking().GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status.Closed() {
			return errs.InvalidState("stocktaking task %d is already %s", taskID, task.Status)
		}
		missing, err := tx.Stocktaking().CountUncounted(ctx, taskID)
		if err != nil {
			return fmt.Errorf("stocktaking: count uncounted: %w", err)
		}
		if missing > 0 {
			return &errs.IncompleteItemsError{TaskID: taskID, Count: missing}
		}
		items, err = tx.Stocktaking().ListItems(ctx, taskID)
		if err != nil {
			return fmt.Errorf("stocktaking: list items: %w", err)
		}

		if req.UpdateStock {
			if err := e.reconcile(ctx, tx, taskID, items, operator); err != nil {
				return err
			}
		}

		remark := strings.TrimSpace(req.Remark)
		if remark == "" {
			remark = task.Remark
		}
		return tx.Stocktaking().Complete(ctx, taskID, operator.ID, e.now(), remark)
	})
	if err != nil {
		return stdomain.Report{}, err
	}

	e.m.StocktakingCompleted.WithLabelValues(fmt.Sprint(req.UpdateStock)).Inc()
	if req.UpdateStock {
		e.m.StockMutations.WithLabelValues(string(history.ChangeAdjust)).Add(float64(len(items)))
	}
	e.log.Info("stocktaking completed", "task_id", taskID, "update_stock", req.UpdateStock,
		"items", len(items), "user_id", operator.ID)

	e.notifier.Publish(notify.Notice{
		Kind:    notify.KindStocktakingDone,
		Title:   fmt.Sprintf("Stocktaking %s completed", task.Code),
		UserIDs: []int64{task.CreatorID},
		RefID:   taskID,
	})

	return stdomain.BuildReport(taskID, items), nil
}

// reconcile locks materials in ascending id order so two completions over
// overlapping materials cannot deadlock.
func (e *Engine) reconcile(ctx context.Context, tx store.Tx, taskID int64, items []stdomain.Item, operator users.User) error {
	ordered := slices.Clone(items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].MaterialID < ordered[j].MaterialID })

	opID := operator.ID
	for _, it := range ordered {
		actual := *it.ActualStock
		before, err := ledger.Reconcile(ctx, tx, it.MaterialID, actual)
		if err != nil {
			return err
		}
		if err := tx.History().Append(ctx, &history.Entry{
			MaterialID:     it.MaterialID,
			ChangeType:     history.ChangeAdjust,
			QuantityChange: it.Difference,
			StockBefore:    before,
			StockAfter:     actual,
			OperatorID:     &opID,
			Remark:         fmt.Sprintf("stocktaking task %d, book stock %g", taskID, it.BookStock),
		}); err != nil {
			return fmt.Errorf("stocktaking: append history: %w", err)
		}
	}
	return nil
}

// Cancel abandons a task that is not completed. Cancelling a cancelled task is a no-op.
func (e *Engine) Cancel(ctx context.Context, taskID int64) error {
	already := false
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		task, err := tx.Stocktaking().GetTaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		switch task.Status {
		case stdomain.StatusCompleted:
			return errs.InvalidState("stocktaking task %d is already completed", taskID)
		case stdomain.StatusCancelled:
			already = true
			return nil
		}
		ok, err := tx.Stocktaking().Transition(ctx, taskID,
			[]stdomain.Status{stdomain.StatusDraft, stdomain.StatusInProgress}, stdomain.StatusCancelled)
		if err != nil {
			return fmt.Errorf("stocktaking: cancel: %w", err)
		}
		if !ok {
			return errs.InvalidState("stocktaking task %d is closed", taskID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if already {
		e.log.Debug("stocktaking already cancelled", "task_id", taskID)
		return nil
	}
	e.log.Info("stocktaking cancelled", "task_id", taskID)
	return nil
}

type TaskDetail struct {
	Task  stdomain.Task
	Items []stdomain.Item
}

func (e *Engine) Get(ctx context.Context, taskID int64, requester users.User) (TaskDetail, error) {
	task, err := e.store.Stocktaking().GetTask(ctx, taskID)
	if err != nil {
		return TaskDetail{}, err
	}
	if !requester.Role.CanApprove() && task.CreatorID != requester.ID {
		return TaskDetail{}, errs.Forbidden("stocktaking task %d belongs to another user", taskID)
	}
	items, err := e.store.Stocktaking().ListItems(ctx, taskID)
	if err != nil {
		return TaskDetail{}, fmt.Errorf("stocktaking: list items: %w", err)
	}
	return TaskDetail{Task: *task, Items: items}, nil
}

type Filter struct {
	Page     int
	PageSize int
	Status   stdomain.Status
}

type Page struct {
	List     []stdomain.Task
	Total    int
	Page     int
	PageSize int
}

func (e *Engine) List(ctx context.Context, f Filter, requester users.User) (Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, errs.Validation("unknown status %q", f.Status)
	}
	lf := stdomain.ListFilter{Status: f.Status}
	if !requester.Role.CanApprove() {
		lf.CreatorID = requester.ID
	}
	lf.Page, lf.PageSize = db.NormalizePage(f.Page, f.PageSize)
	list, total, err := e.store.Stocktaking().ListTasks(ctx, lf)
	if err != nil {
		return Page{}, fmt.Errorf("stocktaking: list: %w", err)
	}
	return Page{List: list, Total: total, Page: lf.Page, PageSize: lf.PageSize}, nil
}

// Report rebuilds the difference report from the recorded counts of a task.
func (e *Engine) Report(ctx context.Context, taskID int64) (stdomain.Report, error) {
	if _, err := e.store.Stocktaking().GetTask(ctx, taskID); err != nil {
		return stdomain.Report{}, err
	}
	items, err := e.store.Stocktaking().ListItems(ctx, taskID)
	if err != nil {
		return stdomain.Report{}, fmt.Errorf("stocktaking: list items: %w", err)
	}
	return stdomain.BuildReport(taskID, items), nil
}
