package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase groups the inventory items bought together. It has no status of its own;
// items point back at it through Inventory.PurchaseID.
type Purchase struct {
	ID        int64               `json:"id"`
	Seller    *string             `json:"seller_name"`
	Origin    *string             `json:"origin"`
	Date      *string             `json:"purchase_date"`
	Cost      decimal.NullDecimal `json:"purchase_cost"`
	Notes     *string             `json:"purchase_notes"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// PurchaseDraft is the input for creating a purchase.
type PurchaseDraft struct {
	Seller *string             `json:"seller_name,omitempty"`
	Origin *string             `json:"origin,omitempty"`
	Date   *string             `json:"purchase_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Cost   decimal.NullDecimal `json:"purchase_cost"`
	Notes  *string             `json:"purchase_notes,omitempty"`
}

// PurchaseView is the purchase row served from the purchases cache.
type PurchaseView struct {
	PurchaseID int64               `json:"purchase_id"`
	Seller     *string             `json:"seller_name"`
	Origin     *string             `json:"origin"`
	Date       *string             `json:"purchase_date"`
	Cost       decimal.NullDecimal `json:"purchase_cost"`
	Notes      *string             `json:"purchase_notes"`
	ItemCount  int                 `json:"items"`
	CreatedAt  time.Time           `json:"purchase_created_at"`
	UpdatedAt  time.Time           `json:"purchase_updated_at"`
	SecondsAgo int64               `json:"purchase_updated_secondsago"`
}

// Sale groups inventory items sold (or reserved) to one buyer.
type Sale struct {
	ID        int64      `json:"id"`
	Buyer     *string    `json:"buyer_name"`
	Status    SaleStatus `json:"sale_status"`
	Date      *string    `json:"sale_date"`
	Notes     *string    `json:"sale_notes"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SaleDraft is the input for creating a sale.
type SaleDraft struct {
	Buyer  *string    `json:"buyer_name,omitempty"`
	Status SaleStatus `json:"sale_status" validate:"required,valid"`
	Date   *string    `json:"sale_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes  *string    `json:"sale_notes,omitempty"`
}

// SaleView is the sale row served from the sales cache.
type SaleView struct {
	SaleID     int64           `json:"sale_id"`
	Buyer      *string         `json:"buyer_name"`
	Status     SaleStatus      `json:"sale_status"`
	Date       *string         `json:"sale_date"`
	Notes      *string         `json:"sale_notes"`
	ItemCount  int             `json:"items"`
	Total      decimal.Decimal `json:"total_sold_price"`
	CreatedAt  time.Time       `json:"sale_created_at"`
	UpdatedAt  time.Time       `json:"sale_updated_at"`
	SecondsAgo int64           `json:"sale_updated_secondsago"`
}

// SaleItem links an inventory item to a sale with the price captured when it was added.
type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	InventoryID int64           `json:"inventory_id"`
	SoldPrice   decimal.Decimal `json:"sold_price"`
	CreatedAt   time.Time       `json:"created_at"`
}
