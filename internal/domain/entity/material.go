package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material representa un material físico del almacén.
// Balance es el saldo físico; AvgCost es el costo promedio ponderado y queda nil hasta la primera entrada.
// Ambos se modifican únicamente a través del InventoryLedger.
type Material struct {
	ID           string
	Code         string // código único
	Description  string
	Model        string
	SerialNumber string
	UnitMeasure  string
	Balance      decimal.Decimal
	AvgCost      *decimal.Decimal
	Company      string // empresa dueña (ej. INPROUT, CLIENTE)
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MaterialEntry es una entrada de stock; cada una recalcula el costo promedio del material.
type MaterialEntry struct {
	ID         string
	MaterialID string
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	Notes      string
	CreatedBy  int64
	CreatedAt  time.Time
}
