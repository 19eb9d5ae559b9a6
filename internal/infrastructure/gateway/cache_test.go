package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/materiales-api/internal/application/approval"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/pkg/logger"
	redislib "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	down bool
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return "", errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *mockStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

// countingDirectory cuenta las consultas que llegan al sistema externo.
type countingDirectory struct {
	calls    int
	pushes   int
	orders   map[int64]*approval.WorkOrder
	segments []entity.Segment
}

func (d *countingDirectory) WorkOrder(_ context.Context, id int64) *approval.WorkOrder {
	d.calls++
	return d.orders[id]
}

func (d *countingDirectory) LineItem(context.Context, int64) *approval.LineItem {
	d.calls++
	return nil
}

func (d *countingDirectory) User(_ context.Context, id int64) *approval.User {
	d.calls++
	segs := d.segments
	if segs == nil {
		segs = []entity.Segment{{ID: 7, Name: "Energía"}}
	}
	return &approval.User{ID: id, Name: "Ana", Segments: segs}
}

func (d *countingDirectory) PushMaterialCost(context.Context, int64, decimal.Decimal) bool {
	d.pushes++
	return true
}

func TestCachedDirectory_GuardaYReutiliza(t *testing.T) {
	next := &countingDirectory{orders: map[int64]*approval.WorkOrder{
		1: {ID: 1, Number: "OS-1", Site: "Norte", Segment: &entity.Segment{ID: 7, Name: "Energía"}},
	}}
	store := newMockStore()
	dir := NewCachedDirectory(next, store, time.Minute, logger.Nop())
	ctx := context.Background()

	first := dir.WorkOrder(ctx, 1)
	second := dir.WorkOrder(ctx, 1)

	require.NotNil(t, second)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, time.Minute, store.ttls["materiales:gw:work_order:1"])
}

// Un cambio de segmentos en el sistema externo vale en la consulta siguiente.
func TestCachedDirectory_UsuarioSiempreDirecto(t *testing.T) {
	next := &countingDirectory{}
	store := newMockStore()
	dir := NewCachedDirectory(next, store, time.Minute, logger.Nop())
	ctx := context.Background()

	assert.Equal(t, []int64{7}, dir.User(ctx, 3).SegmentIDs())
	next.segments = []entity.Segment{{ID: 9, Name: "Telecom"}}
	assert.Equal(t, []int64{9}, dir.User(ctx, 3).SegmentIDs())

	assert.Equal(t, 2, next.calls)
	assert.NotContains(t, store.ttls, "materiales:gw:user:3")
}

func TestCachedDirectory_NoGuardaVacios(t *testing.T) {
	next := &countingDirectory{}
	dir := NewCachedDirectory(next, newMockStore(), time.Minute, logger.Nop())
	ctx := context.Background()

	assert.Nil(t, dir.WorkOrder(ctx, 9))
	assert.Nil(t, dir.WorkOrder(ctx, 9))
	assert.Nil(t, dir.LineItem(ctx, 9))
	assert.Equal(t, 3, next.calls)
}

func TestCachedDirectory_RedisCaidoConsultaDirecto(t *testing.T) {
	next := &countingDirectory{orders: map[int64]*approval.WorkOrder{1: {ID: 1, Number: "OS-1"}}}
	store := newMockStore()
	store.down = true
	dir := NewCachedDirectory(next, store, time.Minute, logger.Nop())
	ctx := context.Background()

	assert.Equal(t, "OS-1", dir.WorkOrder(ctx, 1).Number)
	assert.Equal(t, "OS-1", dir.WorkOrder(ctx, 1).Number)
	assert.Equal(t, 2, next.calls)
}

func TestCachedDirectory_PushNoSeCachea(t *testing.T) {
	next := &countingDirectory{}
	dir := NewCachedDirectory(next, newMockStore(), time.Minute, logger.Nop())

	assert.True(t, dir.PushMaterialCost(context.Background(), 1, decimal.NewFromInt(5)))
	assert.True(t, dir.PushMaterialCost(context.Background(), 1, decimal.NewFromInt(5)))
	assert.Equal(t, 2, next.pushes)
}
