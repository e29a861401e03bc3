package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is the example entity populated by the sales importers.
type Sale struct {
	ID       int64           `json:"id"`
	Date     time.Time       `json:"date"`
	Cliente  string          `json:"cliente"`
	Producto int64           `json:"producto"`
	Cantidad int64           `json:"cantidad"`
	Precio   decimal.Decimal `json:"precio"`
}
