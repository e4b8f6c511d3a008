package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalogue entry (a game, console, accessory...) that inventory items point at.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"product_title"`
	Variant     *string   `json:"product_variant"`
	ReleaseYear *int      `json:"release_year"`
	Group       *string   `json:"product_group"`
	Type        string    `json:"product_type"`
	Region      *string   `json:"region"`
	Rating      *string   `json:"rating"`
	Notes       *string   `json:"product_notes"`
	IsActive    Flag      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductDraft is the input for creating a product.
type ProductDraft struct {
	Title       string  `json:"product_title" validate:"required"`
	Variant     *string `json:"product_variant,omitempty"`
	ReleaseYear *int    `json:"release_year,omitempty" validate:"omitempty,gte=1970,pastyear"`
	Group       *string `json:"product_group,omitempty"`
	Type        string  `json:"product_type" validate:"required"`
	Region      *string `json:"region,omitempty" validate:"required_with=Rating"`
	Rating      *string `json:"rating,omitempty"`
	Notes       *string `json:"product_notes,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// ProductView is the denormalized product row served from the products cache.
type ProductView struct {
	ProductID         int64      `json:"product_id"`
	Title             string     `json:"product_title"`
	Variant           *string    `json:"product_variant"`
	ReleaseYear       *int       `json:"release_year"`
	Group             *string    `json:"product_group"`
	Type              string     `json:"product_type"`
	Region            *string    `json:"region"`
	Rating            *string    `json:"rating"`
	Notes             *string    `json:"product_notes"`
	IsActive          Flag       `json:"is_active"`
	InventoryCount    int        `json:"inventory_count"`
	Tags              StringList `json:"tags"`
	CreatedAt         time.Time  `json:"product_created_at"`
	UpdatedAt         time.Time  `json:"product_updated_at"`
	UpdatedSecondsAgo int64      `json:"product_updated_secondsago"`
}

// DraftView builds the optimistic view row shown while a create is in flight.
func (d ProductDraft) DraftView(now time.Time) ProductView {
	return ProductView{
		ProductID:   DraftID,
		Title:       d.Title,
		Variant:     d.Variant,
		ReleaseYear: d.ReleaseYear,
		Group:       d.Group,
		Type:        d.Type,
		Region:      d.Region,
		Rating:      d.Rating,
		Notes:       d.Notes,
		IsActive:    Flag(d.IsActive),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Condition keys a product price.
type Condition string

// Price conditions.
const (
	ConditionLoose    Condition = "loose"
	ConditionComplete Condition = "cib"
	ConditionNew      Condition = "new"
	ConditionGraded   Condition = "graded"
	ConditionBox      Condition = "box"
	ConditionManual   Condition = "manual"
)

// Conditions lists every price condition in display order.
var Conditions = []Condition{ConditionLoose, ConditionComplete, ConditionNew, ConditionGraded, ConditionBox, ConditionManual}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	for _, k := range Conditions {
		if c == k {
			return true
		}
	}
	return false
}

// ProductPrice is the market price of a product in a given condition.
type ProductPrice struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Condition Condition       `json:"price_type"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}
