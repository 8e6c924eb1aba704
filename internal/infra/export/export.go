// Package export renders reports as .xlsx workbooks.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/stockdesk/internal/domain/history"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	"github.com/Spok95/stockdesk/internal/domain/stocktaking"
)

const (
	SheetSummary = "Summary"
	SheetItems   = "Items"
	SheetHistory = "History"
)

// StocktakingReport writes a summary sheet and one row per item.
func StocktakingReport(task stocktaking.Task, rep stocktaking.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetSummary); err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"Task code", task.Code},
		{"Task name", task.Name},
		{"Status", string(task.Status)},
		{"Total items", rep.TotalItems},
		{"Surplus items", rep.SurplusCount},
		{"Shortage items", rep.ShortageCount},
		{"Normal items", rep.NormalCount},
		{"Total surplus", rep.TotalSurplus},
		{"Total shortage", rep.TotalShortage},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(SheetItems); err != nil {
		return nil, err
	}
	rows := [][]interface{}{{"material_code", "material_name", "unit", "book_stock", "actual_stock", "difference", "difference_type", "remark"}}
	for _, it := range rep.Items {
		var actual interface{}
		if it.ActualStock != nil {
			actual = *it.ActualStock
		}
		var kind string
		if it.DifferenceType != nil {
			kind = string(*it.DifferenceType)
		}
		rows = append(rows, []interface{}{
			it.MaterialCode,
			it.MaterialName,
			it.MaterialUnit,
			it.BookStock,
			actual,
			it.Difference,
			kind,
			it.Remark,
		})
	}
	if err := writeRows(f, SheetItems, rows); err != nil {
		return nil, err
	}
	return finish(f)
}

// StockHistory writes the audit trail of one material, in the given order.
func StockHistory(m materials.Material, entries []history.Entry, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetHistory); err != nil {
		return nil, err
	}
	rows := [][]interface{}{
		{"Material", fmt.Sprintf("%s %s", m.Code, m.Name)},
		{"Current stock", m.CurrentStock, m.Unit},
		{},
		{"date", "change_type", "quantity_change", "stock_before", "stock_after", "transaction_id", "operator_id", "remark"},
	}
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			string(e.ChangeType),
			e.QuantityChange,
			e.StockBefore,
			e.StockAfter,
			optional(e.TransactionID),
			optional(e.OperatorID),
			e.Remark,
		})
	}
	if err := writeRows(f, SheetHistory, rows); err != nil {
		return nil, err
	}
	return finish(f)
}

func optional(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func finish(f *excelize.File) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
