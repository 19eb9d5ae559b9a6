package repository

import (
	"context"
	"time"

	"github.com/jhoicas/materiales-api/internal/domain/entity"
)

// RequestFilter restringe los listados de solicitudes. Campos vacíos no filtran.
type RequestFilter struct {
	Statuses    []string
	SegmentIDs  []int64
	RequesterID *int64
	From        *time.Time // inclusive
	To          *time.Time // exclusivo
	// WithPendingItems sólo solicitudes con al menos un ítem PENDING.
	WithPendingItems bool
	// SegmentUnresolved sólo solicitudes sin segmento resuelto; se ignora SegmentIDs.
	SegmentUnresolved bool
	Limit             int
}

// RequestRepository define el puerto para solicitudes y sus ítems (la solicitud es dueña de los ítems).
// GetByID y GetForUpdate devuelven (nil, nil) si no existe.
type RequestRepository interface {
	// Create persiste la solicitud y todos sus ítems.
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id string) (*entity.Request, error)
	// GetForUpdate bloquea la fila de la solicitud y carga sus ítems.
	GetForUpdate(ctx context.Context, id string) (*entity.Request, error)
	// FindRequestIDsByItems devuelve itemID -> requestID para los ítems existentes.
	FindRequestIDsByItems(ctx context.Context, itemIDs []string) (map[string]string, error)
	// Save persiste estado, aprobador y los ítems modificados de la solicitud.
	Save(ctx context.Context, req *entity.Request) error
	UpdateSegment(ctx context.Context, id string, segmentID int64, site string) error
	// List devuelve solicitudes con ítems, más recientes primero.
	List(ctx context.Context, f RequestFilter) ([]*entity.Request, error)
}
