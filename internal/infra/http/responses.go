package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/stockdesk/internal/domain/history"
	"github.com/Spok95/stockdesk/internal/domain/inventory"
	"github.com/Spok95/stockdesk/internal/domain/materials"
	"github.com/Spok95/stockdesk/internal/domain/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/users"
)

type userView struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	RealName   string `json:"real_name"`
	Role       string `json:"role"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

func toUser(u users.User) userView {
	return userView{ID: u.ID, Username: u.Username, RealName: u.RealName, Role: string(u.Role), TelegramID: u.TelegramID}
}

type materialView struct {
	ID           int64     `json:"id"`
	MaterialCode string    `json:"material_code"`
	MaterialName string    `json:"material_name"`
	Category     string    `json:"category"`
	Unit         string    `json:"unit"`
	CurrentStock float64   `json:"current_stock"`
	MinStock     float64   `json:"min_stock"`
	MaxStock     float64   `json:"max_stock"`
	Location     string    `json:"location"`
	Description  string    `json:"description"`
	IsLowStock   bool      `json:"is_low_stock"`
	CreatedBy    *int64    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toMaterial(m materials.Material) materialView {
	return materialView{
		ID:           m.ID,
		MaterialCode: m.Code,
		MaterialName: m.Name,
		Category:     string(m.Category),
		Unit:         m.Unit,
		CurrentStock: m.CurrentStock,
		MinStock:     m.MinStock,
		MaxStock:     m.MaxStock,
		Location:     m.Location,
		Description:  m.Description,
		IsLowStock:   m.LowStock(),
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type transactionView struct {
	ID              int64               `json:"id"`
	TransactionCode string              `json:"transaction_code"`
	TransactionType string              `json:"transaction_type"`
	MaterialID      int64               `json:"material_id"`
	MaterialCode    string              `json:"material_code,omitempty"`
	MaterialName    string              `json:"material_name,omitempty"`
	Unit            string              `json:"unit,omitempty"`
	Quantity        float64             `json:"quantity"`
	UnitPrice       decimal.NullDecimal `json:"unit_price"`
	TotalAmount     decimal.NullDecimal `json:"total_amount"`
	ApplicantID     int64               `json:"applicant_id"`
	ApplicantName   string              `json:"applicant_name,omitempty"`
	ApproverID      *int64              `json:"approver_id"`
	ApproverName    string              `json:"approver_name,omitempty"`
	Status          string              `json:"status"`
	Remark          string              `json:"remark"`
	CreatedAt       time.Time           `json:"created_at"`
	ApprovedAt      *time.Time          `json:"approved_at"`
}

func toTransaction(t inventory.Transaction) transactionView {
	return transactionView{
		ID:              t.ID,
		TransactionCode: t.Code,
		TransactionType: string(t.Type),
		MaterialID:      t.MaterialID,
		MaterialCode:    t.MaterialCode,
		MaterialName:    t.MaterialName,
		Unit:            t.MaterialUnit,
		Quantity:        t.Quantity,
		UnitPrice:       t.UnitPrice,
		TotalAmount:     t.TotalAmount,
		ApplicantID:     t.ApplicantID,
		ApplicantName:   t.ApplicantName,
		ApproverID:      t.ApproverID,
		ApproverName:    t.ApproverName,
		Status:          string(t.Status),
		Remark:          t.Remark,
		CreatedAt:       t.CreatedAt,
		ApprovedAt:      t.ApprovedAt,
	}
}

type historyView struct {
	ID             int64     `json:"id"`
	TransactionID  *int64    `json:"transaction_id"`
	ChangeType     string    `json:"change_type"`
	QuantityChange float64   `json:"quantity_change"`
	StockBefore    float64   `json:"stock_before"`
	StockAfter     float64   `json:"stock_after"`
	OperatorID     *int64    `json:"operator_id"`
	Remark         string    `json:"remark"`
	CreatedAt      time.Time `json:"created_at"`
}

func toHistory(entries []history.Entry) []historyView {
	out := make([]historyView, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyView{
			ID:             e.ID,
			TransactionID:  e.TransactionID,
			ChangeType:     string(e.ChangeType),
			QuantityChange: e.QuantityChange,
			StockBefore:    e.StockBefore,
			StockAfter:     e.StockAfter,
			OperatorID:     e.OperatorID,
			Remark:         e.Remark,
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}

type taskView struct {
	ID           int64      `json:"id"`
	TaskCode     string     `json:"task_code"`
	TaskName     string     `json:"task_name"`
	Status       string     `json:"status"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	CreatorID    int64      `json:"creator_id"`
	CreatorName  string     `json:"creator_name,omitempty"`
	CompletedBy  *int64     `json:"completed_by"`
	CompletedAt  *time.Time `json:"completed_at"`
	Remark       string     `json:"remark"`
	ItemCount    int        `json:"item_count"`
	CountedCount int        `json:"counted_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toTask(t stocktaking.Task) taskView {
	return taskView{
		ID:           t.ID,
		TaskCode:     t.Code,
		TaskName:     t.Name,
		Status:       string(t.Status),
		StartDate:    t.StartDate,
		EndDate:      t.EndDate,
		CreatorID:    t.CreatorID,
		CreatorName:  t.CreatorName,
		CompletedBy:  t.CompletedBy,
		CompletedAt:  t.CompletedAt,
		Remark:       t.Remark,
		ItemCount:    t.ItemCount,
		CountedCount: t.CountedCount,
		CreatedAt:    t.CreatedAt,
	}
}

type itemView struct {
	ID             int64    `json:"id"`
	MaterialID     int64    `json:"material_id"`
	MaterialCode   string   `json:"material_code"`
	MaterialName   string   `json:"material_name"`
	Unit           string   `json:"unit"`
	Category       string   `json:"category"`
	BookStock      float64  `json:"book_stock"`
	ActualStock    *float64 `json:"actual_stock"`
	Difference     float64  `json:"difference"`
	DifferenceType *string  `json:"difference_type"`
	Remark         string   `json:"remark"`
}

func toItems(items []stocktaking.Item) []itemView {
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		v := itemView{
			ID:           it.ID,
			MaterialID:   it.MaterialID,
			MaterialCode: it.MaterialCode,
			MaterialName: it.MaterialName,
			Unit:         it.MaterialUnit,
			Category:     it.MaterialCategory,
			BookStock:    it.BookStock,
			ActualStock:  it.ActualStock,
			Difference:   it.Difference,
			Remark:       it.Remark,
		}
		if it.DifferenceType != nil {
			s := string(*it.DifferenceType)
			v.DifferenceType = &s
		}
		out = append(out, v)
	}
	return out
}

type reportView struct {
	TaskID        int64      `json:"task_id"`
	TotalItems    int        `json:"total_items"`
	SurplusCount  int        `json:"surplus_count"`
	ShortageCount int        `json:"shortage_count"`
	NormalCount   int        `json:"normal_count"`
	TotalSurplus  float64    `json:"total_surplus"`
	TotalShortage float64    `json:"total_shortage"`
	Items         []itemView `json:"items"`
}

func toReport(r stocktaking.Report) reportView {
	return reportView{
		TaskID:        r.TaskID,
		TotalItems:    r.TotalItems,
		SurplusCount:  r.SurplusCount,
		ShortageCount: r.ShortageCount,
		NormalCount:   r.NormalCount,
		TotalSurplus:  r.TotalSurplus,
		TotalShortage: r.TotalShortage,
		Items:         toItems(r.Items),
	}
}

type pageMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func meta(page, size, total int) pageMeta {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return pageMeta{Page: page, PageSize: size, Total: total, TotalPages: pages}
}
