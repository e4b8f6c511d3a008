package domain

import "unicode"

// InventoryStatus is the lifecycle state of a single inventory item.
type InventoryStatus string

// Inventory statuses.
const (
	StatusNormal     InventoryStatus = "Normal"
	StatusCollection InventoryStatus = "Collection"
	StatusForSale    InventoryStatus = "For Sale"
	StatusSold       InventoryStatus = "Sold"
)

// InventoryStatuses lists every status in display order.
var InventoryStatuses = []InventoryStatus{StatusNormal, StatusCollection, StatusForSale, StatusSold}

// Valid reports whether s is a known status.
func (s InventoryStatus) Valid() bool {
	switch s {
	case StatusNormal, StatusCollection, StatusForSale, StatusSold:
		return true
	default:
		return false
	}
}

// Shortcut returns the keyboard key bound to the status.
func (s InventoryStatus) Shortcut() rune {
	switch s {
	case StatusNormal:
		return 'N'
	case StatusCollection:
		return 'C'
	case StatusForSale:
		return 'F'
	case StatusSold:
		return 'S'
	default:
		return 0
	}
}

// StatusForShortcut resolves a keyboard key (case-insensitive) to a status.
func StatusForShortcut(key rune) (InventoryStatus, bool) {
	key = unicode.ToUpper(key)
	for _, s := range InventoryStatuses {
		if s.Shortcut() == key {
			return s, true
		}
	}
	return "", false
}

// SaleStatus is the state of a sale.
type SaleStatus string

// Sale statuses.
const (
	SaleReserved  SaleStatus = "Reserved"
	SaleFinalized SaleStatus = "Finalized"
)

// Valid reports whether s is a known sale status.
func (s SaleStatus) Valid() bool {
	return s == SaleReserved || s == SaleFinalized
}

// StatusTransition is one row of the transition legality matrix.
// RequiresSaleStatus, when set, restricts the transition to items whose sale has that status.
type StatusTransition struct {
	ID                 int64           `json:"id"`
	FromStatus         InventoryStatus `json:"from_status"`
	ToStatus           InventoryStatus `json:"to_status"`
	RequiresSaleStatus *SaleStatus     `json:"requires_sale_status"`
}
