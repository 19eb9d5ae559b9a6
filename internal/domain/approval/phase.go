// Package approval contiene la máquina de estados de la solicitud (servicio de dominio puro).
package approval

import (
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Outcome describe el efecto de Advance sobre la solicitud.
type Outcome struct {
	Changed    bool
	Finalized  bool // llegó a APPROVED en segunda línea (dispara el push de costo)
	From       string
	To         string
	ResetItems int             // ítems devueltos a PENDING al pasar a etapa 2
	TotalCost  decimal.Decimal // sólo si Finalized
}

// Advance recalcula el estado de la solicitud después de decidir ítems en la etapa stage
// (RoleFirstLine o RoleSecondLine). Muta req en memoria; el caller persiste.
//
// Reglas: solicitud terminal o con algún ítem PENDING no cambia; todos REJECTED => REJECTED;
// en primera línea pasa a PENDING_STAGE_2 y los APPROVED vuelven a PENDING para que la segunda
// línea los revalide; en segunda línea pasa a APPROVED con el total de costos congelados.
func Advance(req *entity.Request, stage entity.Role) Outcome {
	out := Outcome{From: req.Status, To: req.Status}
	if req.IsFinal() || len(req.Items) == 0 || req.HasPendingItems() {
		return out
	}

	allRejected := true
	for _, it := range req.Items {
		if it.Status != entity.ItemRejected {
			allRejected = false
			break
		}
	}
	if allRejected {
		req.Status = entity.RequestRejected
		out.Changed, out.To = true, req.Status
		return out
	}

	switch stage {
	case entity.RoleFirstLine:
		if req.Status != entity.RequestPendingStage1 {
			return out
		}
		for i := range req.Items {
			if req.Items[i].Status == entity.ItemApproved {
				req.Items[i].Status = entity.ItemPending
				req.Items[i].ApprovedCost = nil
				req.Items[i].DecidedAt = nil
				out.ResetItems++
			}
		}
		req.Status = entity.RequestPendingStage2
	case entity.RoleSecondLine:
		if req.Status != entity.RequestPendingStage2 {
			return out
		}
		req.Status = entity.RequestApproved
		out.Finalized = true
		out.TotalCost = ApprovedTotal(req)
	default:
		return out
	}
	out.Changed, out.To = true, req.Status
	return out
}

// ApprovedTotal suma los costos congelados de los ítems APPROVED (nil cuenta como cero).
func ApprovedTotal(req *entity.Request) decimal.Decimal {
	total := decimal.Zero
	for _, it := range req.Items {
		if it.Status == entity.ItemApproved && it.ApprovedCost != nil {
			total = total.Add(*it.ApprovedCost)
		}
	}
	return total
}
