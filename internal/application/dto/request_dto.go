package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateRequestItem línea del pedido.
type CreateRequestItem struct {
	MaterialID string          `json:"material_id" validate:"required,uuid"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// CreateRequestRequest crea una solicitud de materiales contra una orden de trabajo.
type CreateRequestRequest struct {
	WorkOrderID   int64               `json:"work_order_id" validate:"required,gt=0"`
	LineItemID    int64               `json:"line_item_id" validate:"gte=0"`
	Justification string              `json:"justification" validate:"max=1000"`
	Items         []CreateRequestItem `json:"items" validate:"required,min=1,dive"`
}

// DecisionRequest decisión sobre un único ítem.
type DecisionRequest struct {
	Action string `json:"action" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// BatchDecisionRequest decisión sobre varios ítems.
type BatchDecisionRequest struct {
	ItemIDs []string `json:"item_ids" validate:"required,min=1,dive,uuid"`
	Action  string   `json:"action" validate:"required"`
	Reason  string   `json:"reason" validate:"max=500"`
}

// HistoryQuery rango de fechas (YYYY-MM-DD, ambos inclusive).
type HistoryQuery struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// SegmentResponse segmento organizacional.
type SegmentResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// WorkOrderResponse datos de la orden de trabajo externa. Number es el id si no se pudo obtener.
type WorkOrderResponse struct {
	ID      int64           `json:"id"`
	Number  string          `json:"number"`
	Site    string          `json:"site,omitempty"`
	Segment SegmentResponse `json:"segment"`
}

// LineItemResponse objeto contratado (LPU) asociado.
type LineItemResponse struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

// RequestItemResponse salida de un ítem.
type RequestItemResponse struct {
	ID                  string           `json:"id"`
	MaterialID          string           `json:"material_id"`
	MaterialCode        string           `json:"material_code"`
	MaterialDescription string           `json:"material_description"`
	UnitMeasure         string           `json:"unit_measure"`
	Quantity            decimal.Decimal  `json:"quantity"`
	Status              string           `json:"status"`
	RejectionReason     string           `json:"rejection_reason,omitempty"`
	ApprovedCost        *decimal.Decimal `json:"approved_cost,omitempty"`
	DecidedAt           *time.Time       `json:"decided_at,omitempty"`
}

// RequestResponse solicitud enriquecida con datos del sistema externo.
type RequestResponse struct {
	ID            string                `json:"id"`
	Status        string                `json:"status"`
	Justification string                `json:"justification,omitempty"`
	RequesterID   int64                 `json:"requester_id"`
	RequesterName string                `json:"requester_name"`
	ApproverID    *int64                `json:"approver_id,omitempty"`
	WorkOrder     WorkOrderResponse     `json:"work_order"`
	LineItem      LineItemResponse      `json:"line_item"`
	Items         []RequestItemResponse `json:"items"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// RequestListResponse listado de solicitudes.
type RequestListResponse struct {
	Items     []RequestResponse `json:"items"`
	Total     int               `json:"total"`
	// Truncated indica que el tope del listado dejó solicitudes afuera.
	Truncated bool              `json:"truncated"`
}

// SkippedItem ítem no procesado en una decisión por lote.
type SkippedItem struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// BatchDecisionResponse resultado de una decisión por lote.
type BatchDecisionResponse struct {
	Decided  []string      `json:"decided"`
	Skipped  []SkippedItem `json:"skipped"`
	Requests []string      `json:"requests"` // solicitudes afectadas
}
