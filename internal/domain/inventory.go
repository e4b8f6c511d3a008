package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is a physical copy of a product.
type Inventory struct {
	ID            int64               `json:"id"`
	ProductID     int64               `json:"product_id"`
	Status        InventoryStatus     `json:"inventory_status"`
	PurchaseID    *int64              `json:"purchase_id"`
	SaleID        *int64              `json:"sale_id"`
	OverridePrice decimal.NullDecimal `json:"override_price"`
	Notes         *string             `json:"inventory_notes"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// InventoryDraft is the input for creating an inventory item.
type InventoryDraft struct {
	ProductID     int64               `json:"product_id" validate:"required"`
	Status        InventoryStatus     `json:"inventory_status" validate:"required,valid"`
	PurchaseID    *int64              `json:"purchase_id,omitempty"`
	OverridePrice decimal.NullDecimal `json:"override_price"`
	Notes         *string             `json:"inventory_notes,omitempty"`
}

// InventoryView is the denormalized inventory row served from the inventory cache.
// It joins the product, the purchase, the sale and the tag/barcode relationships.
type InventoryView struct {
	InventoryID       int64               `json:"inventory_id"`
	ProductID         int64               `json:"product_id"`
	Title             string              `json:"product_title"`
	Variant           *string             `json:"product_variant"`
	ReleaseYear       *int                `json:"release_year"`
	Type              string              `json:"product_type"`
	Region            *string             `json:"region"`
	Rating            *string             `json:"rating"`
	Status            InventoryStatus     `json:"inventory_status"`
	PurchaseID        *int64              `json:"purchase_id"`
	PurchaseSeller    *string             `json:"purchase_seller"`
	SaleID            *int64              `json:"sale_id"`
	SaleStatus        *SaleStatus         `json:"sale_status"`
	SaleBuyer         *string             `json:"sale_buyer"`
	OverridePrice     decimal.NullDecimal `json:"override_price"`
	Notes             *string             `json:"inventory_notes"`
	Tags              StringList          `json:"tags"`
	Barcodes          StringList          `json:"barcodes"`
	CreatedAt         time.Time           `json:"inventory_created_at"`
	UpdatedAt         time.Time           `json:"inventory_updated_at"`
	UpdatedSecondsAgo int64               `json:"inventory_updated_secondsago"`
}

// IsConnectedToSale reports whether the item is linked to a sale.
func (v InventoryView) IsConnectedToSale() bool {
	return v.SaleID != nil
}

// CanDelete reports whether the item may be deleted: it must not be linked to a
// purchase or a sale.
func (v InventoryView) CanDelete() bool {
	return v.PurchaseID == nil && v.SaleID == nil
}

// DraftView builds the optimistic view row shown while a create is in flight.
// Product fields are copied from product when it is known.
func (d InventoryDraft) DraftView(product *ProductView, now time.Time) InventoryView {
	v := InventoryView{
		InventoryID:   DraftID,
		ProductID:     d.ProductID,
		Status:        d.Status,
		PurchaseID:    d.PurchaseID,
		OverridePrice: d.OverridePrice,
		Notes:         d.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if product != nil {
		v.Title = product.Title
		v.Variant = product.Variant
		v.ReleaseYear = product.ReleaseYear
		v.Type = product.Type
		v.Region = product.Region
		v.Rating = product.Rating
	}
	return v
}

// Barcode is a scanned code attached to an inventory item.
type Barcode struct {
	ID          int64     `json:"id"`
	InventoryID int64     `json:"inventory_id"`
	Barcode     string    `json:"barcode"`
	CreatedAt   time.Time `json:"created_at"`
}
