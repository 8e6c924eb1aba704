package http

import (
	"time"

	"github.com/shopspring/decimal"
)

type createUserRequest struct {
	Username   string `json:"username" binding:"required,max=50"`
	RealName   string `json:"real_name" binding:"required,max=100"`
	Role       string `json:"role" binding:"required,oneof=system_admin inventory_manager regular_user"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

type createMaterialRequest struct {
	MaterialCode string  `json:"material_code" binding:"required,max=50"`
	MaterialName string  `json:"material_name" binding:"required,max=200"`
	Category     string  `json:"category" binding:"required,oneof=chemical metal"`
	Unit         string  `json:"unit" binding:"required,max=20"`
	CurrentStock float64 `json:"current_stock" binding:"gte=0"`
	MinStock     float64 `json:"min_stock" binding:"gte=0"`
	MaxStock     float64 `json:"max_stock" binding:"gte=0"`
	Location     string  `json:"location" binding:"max=100"`
	Description  string  `json:"description"`
}

// updateMaterialRequest is the allow-list of editable fields; current_stock is not one of them.
type updateMaterialRequest struct {
	MaterialCode *string  `json:"material_code" binding:"omitempty,max=50"`
	MaterialName *string  `json:"material_name" binding:"omitempty,max=200"`
	Category     *string  `json:"category" binding:"omitempty,oneof=chemical metal"`
	Unit         *string  `json:"unit" binding:"omitempty,max=20"`
	MinStock     *float64 `json:"min_stock" binding:"omitempty,gte=0"`
	MaxStock     *float64 `json:"max_stock" binding:"omitempty,gte=0"`
	Location     *string  `json:"location" binding:"omitempty,max=100"`
	Description  *string  `json:"description"`
}

type materialQuery struct {
	Category string `form:"category"`
	LowStock bool   `form:"low_stock"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

type createTransactionRequest struct {
	TransactionType string           `json:"transaction_type" binding:"required,oneof=in out"`
	MaterialID      int64            `json:"material_id" binding:"required,gt=0"`
	Quantity        float64          `json:"quantity" binding:"required,gt=0"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	Remark          string           `json:"remark" binding:"max=500"`
}

type decisionRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
	Remark string `json:"remark" binding:"max=500"`
}

type transactionQuery struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
	Status     string `form:"status"`
	Type       string `form:"transaction_type"`
	MaterialID int64  `form:"material_id"`
}

type createTaskRequest struct {
	TaskName    string     `json:"task_name" binding:"required,max=200"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	MaterialIDs []int64    `json:"material_ids" binding:"required,min=1,dive,gt=0"`
	Remark      string     `json:"remark" binding:"max=500"`
}

type countRequest struct {
	ActualStock *float64 `json:"actual_stock" binding:"required,gte=0"`
	Remark      string   `json:"remark" binding:"max=500"`
}

type completeRequest struct {
	UpdateStock bool   `json:"update_stock"`
	Remark      string `json:"remark" binding:"max=500"`
}

type taskQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
}
