package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de la solicitud.
const (
	RequestPendingStage1 = "PENDING_STAGE_1" // revisor de primera línea
	RequestPendingStage2 = "PENDING_STAGE_2" // revisor financiero
	RequestApproved      = "APPROVED"
	RequestRejected      = "REJECTED"
)

// Estados del ítem.
const (
	ItemPending  = "PENDING"
	ItemApproved = "APPROVED"
	ItemRejected = "REJECTED"
)

// Request es un caso de aprobación: un pedido de materiales contra una orden de trabajo externa.
// Es dueña exclusiva de sus ítems; borrar la solicitud borra los ítems.
type Request struct {
	ID            string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Justification string
	Status        string
	RequesterID   int64
	WorkOrderID   int64
	LineItemID    int64  // 0 = no informado
	SegmentID     *int64 // nil hasta la primera resolución
	Site          string
	ApproverID    *int64 // último usuario que decidió
	Items         []Item
}

// IsFinal indica si la solicitud llegó a un estado terminal.
func (r *Request) IsFinal() bool {
	return r.Status == RequestApproved || r.Status == RequestRejected
}

// Item busca un ítem por ID dentro de la solicitud.
func (r *Request) Item(id string) *Item {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i]
		}
	}
	return nil
}

// HasPendingItems indica si queda algún ítem sin decidir.
func (r *Request) HasPendingItems() bool {
	for _, it := range r.Items {
		if it.Status == ItemPending {
			return true
		}
	}
	return false
}

// Item es una línea de la solicitud. RequestID es una referencia no dueña a la solicitud.
// Los campos Material* son de sólo lectura: el repositorio los completa para mostrar.
type Item struct {
	ID              string
	RequestID       string
	MaterialID      string
	Quantity        decimal.Decimal
	Status          string
	RejectionReason string
	ApprovedCost    *decimal.Decimal // costo congelado al aprobar en segunda línea
	DecidedAt       *time.Time

	MaterialCode        string
	MaterialDescription string
	MaterialUnit        string
}
