package store

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Item is a store item that can be bought with points.
type Item struct {
	ID           int64  `json:"id"           db:"id"`
	Name         string `json:"name"         db:"name"`
	PreviewImage string `json:"previewImage" db:"preview_image"`
	Description  string `json:"description"  db:"description"`
	Points       int    `json:"points"       db:"points"`
	Active       bool   `json:"active"       db:"active"`
	// Purchased is computed for the calling account.
	Purchased bool `json:"purchased" db:"purchased"`
}

// Transaction is an append-only ledger entry. ItemID is nil once the item
// has been deleted; Points keeps the price paid.
type Transaction struct {
	ID        uuid.UUID       `json:"id"              db:"id"`
	AccountID int64           `json:"-"               db:"account_id"`
	ItemID    *int64          `json:"item"            db:"item_id"`
	ItemName  string          `json:"itemName"        db:"item_name"`
	Points    int             `json:"points"          db:"points"`
	Type      TransactionType `json:"transactionType" db:"transaction_type"`
	Date      time.Time       `json:"transactionDate" db:"transaction_date"`
}

// Purchase is the outcome of a successful buy.
type Purchase struct {
	Transaction     *Transaction
	AvailablePoints int
}

// ItemRef selects an item by id or, when ID is nil, by case-insensitive name.
type ItemRef struct {
	ID   *int64  `json:"itemId"`
	Name *string `json:"itemName"`
}

// Validate requires one of the two selectors.
func (r ItemRef) Validate() error {
	if r.ID == nil && r.Name == nil {
		return validation.NewError("validation_item_ref_required", "Either itemId or itemName field should be specified.")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 100)),
	)
}

// NewItem is the input for adding an item to the catalog.
type NewItem struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	PreviewImage string `json:"previewImage"`
	Points       int    `json:"points"`
}

// Validate checks catalog constraints.
func (n NewItem) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&n.Description, validation.Required, validation.Length(1, 500)),
		validation.Field(&n.Points, validation.Min(0)),
	)
}
