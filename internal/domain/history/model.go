// Package history is the append-only stock audit trail. Rows are written once,
// inside the atomic unit that mutates the stock, and never updated or deleted.
package history

import "time"

type ChangeType string

const (
	ChangeIn     ChangeType = "in"
	ChangeOut    ChangeType = "out"
	ChangeAdjust ChangeType = "adjust"
)

type Entry struct {
	ID             int64
	MaterialID     int64
	TransactionID  *int64
	ChangeType     ChangeType
	QuantityChange float64
	StockBefore    float64
	StockAfter     float64
	OperatorID     *int64
	Remark         string
	CreatedAt      time.Time
}
