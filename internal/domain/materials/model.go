package materials

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryChemical Category = "chemical"
	CategoryMetal    Category = "metal"
)

func (c Category) Valid() bool {
	return c == CategoryChemical || c == CategoryMetal
}

// Material is a stock-keeping unit. Code and name are not unique.
// CurrentStock is owned by the ledger and never changes through Update.
type Material struct {
	ID           int64
	Code         string
	Name         string
	Category     Category
	Unit         string
	CurrentStock float64
	MinStock     float64
	MaxStock     float64
	Location     string
	Description  string
	CreatedBy    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LowStock reports whether stock fell to the configured minimum. A zero minimum disables the check.
func (m Material) LowStock() bool {
	return m.MinStock > 0 && m.CurrentStock <= m.MinStock
}

// New is the input for creating a material; InitialStock seeds current_stock once.
type New struct {
	Code         string
	Name         string
	Category     Category
	Unit         string
	InitialStock float64
	MinStock     float64
	MaxStock     float64
	Location     string
	Description  string
	CreatedBy    *int64
}

// Update lists the only fields a generic edit may touch. Nil means "leave as is".
type Update struct {
	Code        *string
	Name        *string
	Category    *Category
	Unit        *string
	MinStock    *float64
	MaxStock    *float64
	Location    *string
	Description *string
}

func (u Update) Empty() bool {
	return u.Code == nil && u.Name == nil && u.Category == nil && u.Unit == nil &&
		u.MinStock == nil && u.MaxStock == nil && u.Location == nil && u.Description == nil
}

// Apply copies the set fields onto m.
func (u Update) Apply(m *Material) {
	if u.Code != nil {
		m.Code = strings.TrimSpace(*u.Code)
	}
	if u.Name != nil {
		m.Name = strings.TrimSpace(*u.Name)
	}
	if u.Category != nil {
		m.Category = *u.Category
	}
	if u.Unit != nil {
		m.Unit = strings.TrimSpace(*u.Unit)
	}
	if u.MinStock != nil {
		m.MinStock = *u.MinStock
	}
	if u.MaxStock != nil {
		m.MaxStock = *u.MaxStock
	}
	if u.Location != nil {
		m.Location = *u.Location
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
}
