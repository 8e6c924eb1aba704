package inventory

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/stockdesk/internal/domain/history"
)

type Type string

const (
	TypeIn  Type = "in"
	TypeOut Type = "out"
)

func (t Type) Valid() bool { return t == TypeIn || t == TypeOut }

// Delta is the signed stock change an approved transaction of this type applies.
func (t Type) Delta(qty float64) float64 {
	if t == TypeOut {
		return -qty
	}
	return qty
}

func (t Type) ChangeType() history.ChangeType {
	if t == TypeOut {
		return history.ChangeOut
	}
	return history.ChangeIn
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses never transition again.
func (s Status) Terminal() bool { return s != StatusPending }

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) Valid() bool { return a == ActionApprove || a == ActionReject }

// Outcome is the status a decision moves a pending transaction to.
func (a Action) Outcome() Status {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

type Transaction struct {
	ID          int64
	Code        string
	Type        Type
	MaterialID  int64
	Quantity    float64
	UnitPrice   decimal.NullDecimal
	TotalAmount decimal.NullDecimal
	ApplicantID int64
	ApproverID  *int64
	Status      Status
	Remark      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ApprovedAt  *time.Time

	// display only, filled by joined reads
	MaterialCode  string
	MaterialName  string
	MaterialUnit  string
	ApplicantName string
	ApproverName  string
}

// NewCode builds a transaction code: IN/OUT, unix millis, three random digits.
func NewCode(t Type, now time.Time) string {
	prefix := "IN"
	if t == TypeOut {
		prefix = "OUT"
	}
	return fmt.Sprintf("%s%d%03d", prefix, now.UnixMilli(), rand.IntN(1000))
}

// TotalAmount is quantity × unit price, or null when no price was given.
func TotalAmount(qty float64, price decimal.NullDecimal) decimal.NullDecimal {
	if !price.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(qty).Mul(price.Decimal))
}

// Scope restricts which transactions a requester may see. Zero fields mean unrestricted.
type Scope struct {
	ApplicantID int64 // only rows applied for by this user
	ApproverID  int64 // only pending rows or rows decided by this user
}

type ListFilter struct {
	Page       int
	PageSize   int
	Status     Status
	Type       Type
	MaterialID int64
	Scope      Scope
}
