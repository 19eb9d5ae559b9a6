package approval

import (
	"context"

	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// WorkOrder datos de una orden de trabajo del sistema externo.
type WorkOrder struct {
	ID      int64
	Number  string
	Site    string
	Segment *entity.Segment
}

// LineItem ítem contratado (LPU) de una orden de trabajo.
type LineItem struct {
	ID          int64
	Description string // objeto contratado
	Site        string
	Segment     *entity.Segment
}

// User usuario del sistema externo con los segmentos a los que pertenece.
type User struct {
	ID       int64
	Name     string
	Segments []entity.Segment
}

// SegmentIDs devuelve los IDs de segmento válidos (distintos de cero) del usuario.
func (u *User) SegmentIDs() []int64 {
	if u == nil {
		return nil
	}
	out := make([]int64, 0, len(u.Segments))
	for _, s := range u.Segments {
		if s.ID > 0 {
			out = append(out, s.ID)
		}
	}
	return out
}

// Directory es el puerto hacia el sistema externo de órdenes de trabajo. Todas las operaciones
// son best-effort: los fallos devuelven nil/false y nunca abortan el flujo.
type Directory interface {
	WorkOrder(ctx context.Context, id int64) *WorkOrder
	LineItem(ctx context.Context, id int64) *LineItem
	User(ctx context.Context, id int64) *User
	PushMaterialCost(ctx context.Context, workOrderID int64, amount decimal.Decimal) bool
}

// Recorder recibe las métricas del flujo. *metrics.Metrics lo implementa.
type Recorder interface {
	AddDecisions(action, stage string, n int)
	IncFinalized(status string)
	IncUndeliveredCost()
}

type nopRecorder struct{}

func (nopRecorder) AddDecisions(string, string, int) {}
func (nopRecorder) IncFinalized(string)              {}
func (nopRecorder) IncUndeliveredCost()              {}
