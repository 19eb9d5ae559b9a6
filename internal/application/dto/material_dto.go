package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateMaterialRequest entrada para dar de alta un material con su saldo inicial.
// Si InitialUnitCost es nil el costo promedio queda sin definir hasta la primera entrada.
type CreateMaterialRequest struct {
	Code            string           `json:"code" validate:"required,min=1,max=100"`
	Description     string           `json:"description" validate:"required,min=1,max=255"`
	Model           string           `json:"model" validate:"max=100"`
	SerialNumber    string           `json:"serial_number" validate:"max=100"`
	UnitMeasure     string           `json:"unit_measure" validate:"required,max=20"`
	InitialBalance  decimal.Decimal  `json:"initial_balance"`
	InitialUnitCost *decimal.Decimal `json:"initial_unit_cost"`
	Company         string           `json:"company" validate:"max=50"`
	Notes           string           `json:"notes" validate:"max=500"`
}

// UpdateMaterialRequest actualiza datos descriptivos. Saldo y costo sólo cambian vía entradas y reservas.
type UpdateMaterialRequest struct {
	Code         *string `json:"code" validate:"omitempty,min=1,max=100"`
	Description  *string `json:"description" validate:"omitempty,min=1,max=255"`
	Model        *string `json:"model" validate:"omitempty,max=100"`
	SerialNumber *string `json:"serial_number" validate:"omitempty,max=100"`
	Notes        *string `json:"notes" validate:"omitempty,max=500"`
}

// RecordEntryRequest entrada de stock (recalcula el costo promedio).
type RecordEntryRequest struct {
	MaterialID string          `json:"material_id" validate:"required,uuid"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Notes      string          `json:"notes" validate:"max=500"`
}

// MaterialResponse salida de un material.
type MaterialResponse struct {
	ID           string           `json:"id"`
	Code         string           `json:"code"`
	Description  string           `json:"description"`
	Model        string           `json:"model,omitempty"`
	SerialNumber string           `json:"serial_number,omitempty"`
	UnitMeasure  string           `json:"unit_measure"`
	Balance      decimal.Decimal  `json:"balance"`
	AvgCost      *decimal.Decimal `json:"avg_cost"`
	Company      string           `json:"company,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Entries      []EntryResponse  `json:"entries,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// EntryResponse salida de una entrada de stock.
type EntryResponse struct {
	ID         string          `json:"id"`
	MaterialID string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Notes      string          `json:"notes,omitempty"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MaterialListResponse lista paginada de materiales.
type MaterialListResponse struct {
	Items []MaterialResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}
