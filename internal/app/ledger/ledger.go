// Package ledger owns materials.current_stock. Stock only changes through
// ApplyDelta and Reconcile, both of which run inside an atomic unit and read
// the stock under a row lock.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Spok95/stockdesk/internal/domain/errs"
	"github.com/Spok95/stockdesk/internal/domain/history"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/db"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
	"github.com/Spok95/stockdesk/internal/store"
)

// ApplyDelta adds delta to the locked stock of materialID and persists it.
// It fails with an InsufficientStockError when the result would be negative.
func ApplyDelta(ctx context.Context, tx store.Tx, materialID int64, delta float64) (before, after float64, err error) {
	before, err = tx.Materials().LockStock(ctx, materialID)
	if err != nil {
		return 0, 0, fmt.Errorf("lock stock: %w", err)
	}
	after = add(before, delta)
	if after < 0 {
		return before, before, &errs.InsufficientStockError{MaterialID: materialID, Current: before, Requested: -delta}
	}
	if err := tx.Materials().SetStock(ctx, materialID, after); err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

// Reconcile sets the locked stock of materialID to actual and returns the previous value.
func Reconcile(ctx context.Context, tx store.Tx, materialID int64, actual float64) (before float64, err error) {
	if actual < 0 {
		return 0, errs.Validation("actual stock of material %d must not be negative", materialID)
	}
	before, err = tx.Materials().LockStock(ctx, materialID)
	if err != nil {
		return 0, fmt.Errorf("lock stock: %w", err)
	}
	if err := tx.Materials().SetStock(ctx, materialID, actual); err != nil {
		return 0, err
	}
	return before, nil
}

// add sums in decimal so that 0.3 - 0.1 - 0.2 lands on zero, not on -2.7e-17.
func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

type Service struct {
	store store.Store
	log   *slog.Logger
	m     *metrics.Metrics
}

func New(st store.Store, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: st, log: log, m: m}
}

func (s *Service) GetStock(ctx context.Context, materialID int64) (float64, error) {
	m, err := s.store.Materials().GetByID(ctx, materialID)
	if err != nil {
		return 0, err
	}
	return m.CurrentStock, nil
}

func (s *Service) GetMaterial(ctx context.Context, id int64) (*materials.Material, error) {
	return s.store.Materials().GetByID(ctx, id)
}

type Page struct {
	List     []materials.Material
	Total    int
	Page     int
	PageSize int
}

func (s *Service) ListMaterials(ctx context.Context, f materials.ListFilter) (Page, error) {
	if f.Category != "" && !f.Category.Valid() {
		return Page{}, errs.Validation("unknown category %q", f.Category)
	}
	f.Page, f.PageSize = db.NormalizePage(f.Page, f.PageSize)
	list, total, err := s.store.Materials().List(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("list materials: %w", err)
	}
	return Page{List: list, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// CreateMaterial registers a material. A positive initial stock is recorded
// in the audit trail as an adjustment from zero.
func (s *Service) CreateMaterial(ctx context.Context, n materials.New, creator users.User) (*materials.Material, error) {
	n.Code = strings.TrimSpace(n.Code)
	n.Name = strings.TrimSpace(n.Name)
	n.Unit = strings.TrimSpace(n.Unit)
	if err := validateNew(n); err != nil {
		return nil, err
	}
	n.CreatedBy = &creator.ID

	var out *materials.Material
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		m, err := tx.Materials().Create(ctx, n)
		if err != nil {
			return fmt.Errorf("create material: %w", err)
		}
		if n.InitialStock > 0 {
			e := &history.Entry{
				MaterialID:     m.ID,
				ChangeType:     history.ChangeAdjust,
				QuantityChange: n.InitialStock,
				StockBefore:    0,
				StockAfter:     n.InitialStock,
				OperatorID:     &creator.ID,
				Remark:         "initial stock",
			}
			if err := tx.History().Append(ctx, e); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n.InitialStock > 0 {
		s.m.StockMutations.WithLabelValues(string(history.ChangeAdjust)).Inc()
	}
	s.log.Info("material created", "material_id", out.ID, "code", out.Code, "user_id", creator.ID)
	return out, nil
}

func validateNew(n materials.New) error {
	switch {
	case n.Code == "":
		return errs.Validation("material code is required")
	case n.Name == "":
		return errs.Validation("material name is required")
	case !n.Category.Valid():
		return errs.Validation("unknown category %q", n.Category)
	case n.Unit == "":
		return errs.Validation("unit is required")
	case n.InitialStock < 0:
		return errs.Validation("initial stock must not be negative")
	}
	return validateLimits(n.MinStock, n.MaxStock)
}

func validateLimits(lo, hi float64) error {
	if lo < 0 || hi < 0 {
		return errs.Validation("stock limits must not be negative")
	}
	if hi > 0 && lo > hi {
		return errs.Validation("min stock %v exceeds max stock %v", lo, hi)
	}
	return nil
}

// UpdateMaterial edits the allow-listed fields. Stock is not editable here.
func (s *Service) UpdateMaterial(ctx context.Context, id int64, u materials.Update, actor users.User) (*materials.Material, error) {
	if u.Empty() {
		return nil, errs.Validation("nothing to update")
	}
	if u.Category != nil && !u.Category.Valid() {
		return nil, errs.Validation("unknown category %q", *u.Category)
	}
	for name, v := range map[string]*string{"code": u.Code, "name": u.Name, "unit": u.Unit} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return nil, errs.Validation("material %s must not be empty", name)
		}
	}

	var out *materials.Material
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.Materials().GetByID(ctx, id)
		if err != nil {
			return err
		}
		next := *cur
		u.Apply(&next)
		if err := validateLimits(next.MinStock, next.MaxStock); err != nil {
			return err
		}
		out, err = tx.Materials().Update(ctx, id, trimmed(u))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("material updated", "material_id", id, "user_id", actor.ID)
	return out, nil
}

func trimmed(u materials.Update) materials.Update {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	u.Code, u.Name, u.Unit = trim(u.Code), trim(u.Name), trim(u.Unit)
	return u
}

// History returns the newest audit entries of a material.
func (s *Service) History(ctx context.Context, materialID int64, limit int) ([]history.Entry, error) {
	if _, err := s.store.Materials().GetByID(ctx, materialID); err != nil {
		return nil, err
	}
	_, limit = db.NormalizePage(1, limit)
	out, err := s.store.History().ListByMaterial(ctx, materialID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}
