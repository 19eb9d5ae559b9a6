package approval

import (
	"context"
	"sync"

	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/shopspring/decimal"
)

type push struct {
	workOrderID int64
	amount      decimal.Decimal
}

// fakeDirectory simula el sistema externo. Los mapas vacíos equivalen a "sin datos".
type fakeDirectory struct {
	mu        sync.Mutex
	orders    map[int64]*WorkOrder
	lines     map[int64]*LineItem
	users     map[int64]*User
	pushFails bool
	pushes    []push
	calls     map[string]int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		orders: map[int64]*WorkOrder{},
		lines:  map[int64]*LineItem{},
		users:  map[int64]*User{},
		calls:  map[string]int{},
	}
}

func (f *fakeDirectory) WorkOrder(_ context.Context, id int64) *WorkOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["work_order"]++
	return f.orders[id]
}

func (f *fakeDirectory) LineItem(_ context.Context, id int64) *LineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["line_item"]++
	return f.lines[id]
}

func (f *fakeDirectory) User(_ context.Context, id int64) *User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["user"]++
	return f.users[id]
}

func (f *fakeDirectory) PushMaterialCost(_ context.Context, workOrderID int64, amount decimal.Decimal) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["push"]++
	if f.pushFails {
		return false
	}
	f.pushes = append(f.pushes, push{workOrderID: workOrderID, amount: amount})
	return true
}

func (f *fakeDirectory) withWorkOrder(id, segmentID int64, site string) *fakeDirectory {
	f.orders[id] = &WorkOrder{ID: id, Number: "OS-" + decimal.NewFromInt(id).String(), Site: site, Segment: &entity.Segment{ID: segmentID, Name: "Seg"}}
	return f
}

func (f *fakeDirectory) withUser(id int64, name string, segments ...int64) *fakeDirectory {
	u := &User{ID: id, Name: name}
	for _, s := range segments {
		u.Segments = append(u.Segments, entity.Segment{ID: s})
	}
	f.users[id] = u
	return f
}

// fakeRecorder cuenta las métricas emitidas.
type fakeRecorder struct {
	mu          sync.Mutex
	decisions   int
	finalized   map[string]int
	undelivered int
}

func (r *fakeRecorder) AddDecisions(_, _ string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions += n
}

func (r *fakeRecorder) IncFinalized(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized == nil {
		r.finalized = map[string]int{}
	}
	r.finalized[status]++
}

func (r *fakeRecorder) IncUndeliveredCost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.undelivered++
}
