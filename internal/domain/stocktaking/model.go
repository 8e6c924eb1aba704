package stocktaking

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Closed tasks accept no counts and no further transitions.
func (s Status) Closed() bool { return s == StatusCompleted || s == StatusCancelled }

type DifferenceType string

const (
	DifferenceSurplus  DifferenceType = "surplus"
	DifferenceShortage DifferenceType = "shortage"
	DifferenceNormal   DifferenceType = "normal"
)

// ClassifyDifference depends only on the sign of actual - book.
func ClassifyDifference(diff float64) DifferenceType {
	switch {
	case diff > 0:
		return DifferenceSurplus
	case diff < 0:
		return DifferenceShortage
	default:
		return DifferenceNormal
	}
}

type Task struct {
	ID          int64
	Code        string
	Name        string
	Status      Status
	StartDate   *time.Time
	EndDate     *time.Time
	CreatorID   int64
	CompletedBy *int64
	CompletedAt *time.Time
	Remark      string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// filled by list/get reads
	ItemCount    int
	CountedCount int
	CreatorName  string
}

type Item struct {
	ID             int64
	TaskID         int64
	MaterialID     int64
	BookStock      float64
	ActualStock    *float64
	Difference     float64
	DifferenceType *DifferenceType
	Remark         string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	MaterialCode     string
	MaterialName     string
	MaterialUnit     string
	MaterialCategory string
}

func (it Item) Counted() bool { return it.ActualStock != nil }

// Count is the result of recording one physical count.
type Count struct {
	ItemID         int64
	ActualStock    float64
	Difference     float64
	DifferenceType DifferenceType
}

// Evaluate computes the count result of actual against the item's book stock.
func (it Item) Evaluate(actual float64) Count {
	diff := decimal.NewFromFloat(actual).Sub(decimal.NewFromFloat(it.BookStock)).InexactFloat64()
	return Count{
		ItemID:         it.ID,
		ActualStock:    actual,
		Difference:     diff,
		DifferenceType: ClassifyDifference(diff),
	}
}

// NewTaskCode builds a task code: ST, unix millis, three random digits.
func NewTaskCode(now time.Time) string {
	return fmt.Sprintf("ST%d%03d", now.UnixMilli(), rand.IntN(1000))
}

type Report struct {
	TaskID        int64
	TotalItems    int
	SurplusCount  int
	ShortageCount int
	NormalCount   int
	TotalSurplus  float64
	TotalShortage float64
	Items         []Item
}

// BuildReport aggregates counted items; Items are ordered by |difference| descending.
func BuildReport(taskID int64, items []Item) Report {
	rep := Report{TaskID: taskID, TotalItems: len(items)}
	surplus, shortage := decimal.Zero, decimal.Zero
	for _, it := range items {
		if it.DifferenceType == nil {
			continue
		}
		switch *it.DifferenceType {
		case DifferenceSurplus:
			rep.SurplusCount++
			surplus = surplus.Add(decimal.NewFromFloat(it.Difference))
		case DifferenceShortage:
			rep.ShortageCount++
			shortage = shortage.Add(decimal.NewFromFloat(it.Difference).Abs())
		case DifferenceNormal:
			rep.NormalCount++
		}
	}
	rep.TotalSurplus, rep.TotalShortage = surplus.InexactFloat64(), shortage.InexactFloat64()
	rep.Items = make([]Item, len(items))
	copy(rep.Items, items)
	sort.SliceStable(rep.Items, func(i, j int) bool {
		return math.Abs(rep.Items[i].Difference) > math.Abs(rep.Items[j].Difference)
	})
	return rep
}

type ListFilter struct {
	Page      int
	PageSize  int
	Status    Status
	CreatorID int64 // zero means every creator
}
