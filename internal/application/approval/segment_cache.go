package approval

import (
	"context"
	"strconv"
	"sync"

	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"golang.org/x/sync/singleflight"
)

// SegmentCache memoiza las consultas al Directory durante una única operación (un listado,
// una creación). Se crea por llamada y se pasa explícitamente; nunca vive más que la operación.
// Es seguro para uso concurrente y también recuerda las respuestas vacías.
type SegmentCache struct {
	dir Directory

	mu     sync.Mutex
	orders map[int64]*WorkOrder
	lines  map[int64]*LineItem
	users  map[int64]*User
	calls  int

	group singleflight.Group
}

// NewSegmentCache crea una caché vacía sobre dir.
func NewSegmentCache(dir Directory) *SegmentCache {
	return &SegmentCache{
		dir:    dir,
		orders: map[int64]*WorkOrder{},
		lines:  map[int64]*LineItem{},
		users:  map[int64]*User{},
	}
}

// WorkOrder devuelve la orden de trabajo (nil si el sistema externo no respondió).
func (c *SegmentCache) WorkOrder(ctx context.Context, id int64) *WorkOrder {
	return lookup(c, c.orders, "wo:", id, func() *WorkOrder { return c.dir.WorkOrder(ctx, id) })
}

// LineItem devuelve el ítem contratado (nil si no se obtuvo).
func (c *SegmentCache) LineItem(ctx context.Context, id int64) *LineItem {
	return lookup(c, c.lines, "li:", id, func() *LineItem { return c.dir.LineItem(ctx, id) })
}

// User devuelve el usuario externo (nil si no se obtuvo).
func (c *SegmentCache) User(ctx context.Context, id int64) *User {
	return lookup(c, c.users, "us:", id, func() *User { return c.dir.User(ctx, id) })
}

// Calls cantidad de consultas reales hechas al Directory.
func (c *SegmentCache) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Segment resuelve el segmento y el sitio de una solicitud: primero por la orden de trabajo,
// luego por el ítem contratado. segmentID nil si no se pudo resolver.
func (c *SegmentCache) Segment(ctx context.Context, workOrderID, lineItemID int64) (segmentID *int64, site string) {
	if wo := c.WorkOrder(ctx, workOrderID); wo != nil {
		site = wo.Site
		if wo.Segment != nil && wo.Segment.ID > 0 {
			id := wo.Segment.ID
			return &id, site
		}
	}
	if lineItemID > 0 {
		if li := c.LineItem(ctx, lineItemID); li != nil {
			if site == "" {
				site = li.Site
			}
			if li.Segment != nil && li.Segment.ID > 0 {
				id := li.Segment.ID
				return &id, site
			}
		}
	}
	return nil, site
}

func lookup[T any](c *SegmentCache, m map[int64]*T, prefix string, id int64, fetch func() *T) *T {
	c.mu.Lock()
	if v, ok := m[id]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(prefix+strconv.FormatInt(id, 10), func() (any, error) {
		c.mu.Lock()
		if v, ok := m[id]; ok {
			c.mu.Unlock()
			return v, nil
		}
		c.calls++
		c.mu.Unlock()

		res := fetch()
		c.mu.Lock()
		m[id] = res
		c.mu.Unlock()
		return res, nil
	})
	return v.(*T)
}

// placeholders de presentación cuando el sistema externo no responde.
var noSegment = entity.Segment{ID: 0, Name: "-"}

const (
	lineItemNotInformed = "Contrato no informado"
	lineItemNotFound    = "Objeto no encontrado"
)

func requesterPlaceholder(id int64) string {
	return "Solicitante #" + strconv.FormatInt(id, 10)
}
