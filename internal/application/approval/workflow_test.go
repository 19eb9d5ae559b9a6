package approval

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/materiales-api/internal/application/dto"
	"github.com/jhoicas/materiales-api/internal/application/inventory"
	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"github.com/jhoicas/materiales-api/internal/infrastructure/memory"
	"github.com/jhoicas/materiales-api/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	coordinator = entity.Actor{UserID: 10, Role: entity.RoleFirstLine}
	controller  = entity.Actor{UserID: 20, Role: entity.RoleSecondLine}
	admin       = entity.Actor{UserID: 30, Role: entity.RoleAdmin}
	requester   = entity.Actor{UserID: 5, Role: entity.RoleRequester}
)

type fixture struct {
	store *memory.Store
	dir   *fakeDirectory
	rec   *fakeRecorder
	wf    *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	dir := newFakeDirectory().withWorkOrder(100, 7, "Sitio Norte").withUser(coordinator.UserID, "Coord", 7)
	rec := &fakeRecorder{}
	wf := NewWorkflow(memory.NewTxRunner(store), inventory.NewLedger(), store.Requests(), dir, rec, logger.Nop(),
		Config{HistoryLimit: 50, HistoryDefaultDays: 30, EnrichConcurrency: 4})
	return &fixture{store: store, dir: dir, rec: rec, wf: wf}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) material(t *testing.T, code, balance string, avg *string) string {
	t.Helper()
	m := &entity.Material{ID: "mat-" + code, Code: code, Description: "Material " + code, UnitMeasure: "PÇ", Balance: d(balance)}
	if avg != nil {
		a := d(*avg)
		m.AvgCost = &a
	}
	require.NoError(t, f.store.Materials().Create(context.Background(), m))
	return m.ID
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	m, err := f.store.Materials().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.Balance
}

func (f *fixture) create(t *testing.T, actor entity.Actor, workOrderID int64, items ...dto.CreateRequestItem) *dto.RequestResponse {
	t.Helper()
	res, err := f.wf.CreateRequest(context.Background(), actor, dto.CreateRequestRequest{
		WorkOrderID: workOrderID, Justification: "obra", Items: items,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) status(t *testing.T, id string) *entity.Request {
	t.Helper()
	req, err := f.store.Requests().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, req)
	return req
}

func item(materialID, qty string) dto.CreateRequestItem {
	return dto.CreateRequestItem{MaterialID: materialID, Quantity: d(qty)}
}

func strp(s string) *string { return &s }

func approve() dto.DecisionRequest { return dto.DecisionRequest{Action: "APPROVE"} }

func reject(reason string) dto.DecisionRequest {
	return dto.DecisionRequest{Action: "REJECT", Reason: reason}
}

// ============================================================================
// Creación
// ============================================================================

func TestCreateRequest_ReservaYResuelveSegmento(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", strp("2"))

	res := f.create(t, requester, 100, item(a, "4"))

	assert.Equal(t, entity.RequestPendingStage1, res.Status)
	assert.True(t, d("6").Equal(f.balance(t, a)))
	req := f.status(t, res.ID)
	require.NotNil(t, req.SegmentID)
	assert.Equal(t, int64(7), *req.SegmentID)
	assert.Equal(t, "Sitio Norte", req.Site)
	assert.Equal(t, entity.ItemPending, req.Items[0].Status)
	assert.Equal(t, "A", res.Items[0].MaterialCode)
}

func TestCreateRequest_StockInsuficienteNoReservaNada(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	b := f.material(t, "B", "1", nil)

	_, err := f.wf.CreateRequest(context.Background(), requester, dto.CreateRequestRequest{
		WorkOrderID: 100, Items: []dto.CreateRequestItem{item(a, "5"), item(b, "2")},
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.True(t, d("10").Equal(f.balance(t, a)))
	assert.True(t, d("1").Equal(f.balance(t, b)))
}

func TestCreateRequest_Validaciones(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	ctx := context.Background()

	_, err := f.wf.CreateRequest(ctx, requester, dto.CreateRequestRequest{WorkOrderID: 100})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.wf.CreateRequest(ctx, requester, dto.CreateRequestRequest{WorkOrderID: 0, Items: []dto.CreateRequestItem{item(a, "1")}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.wf.CreateRequest(ctx, requester, dto.CreateRequestRequest{WorkOrderID: 100, Items: []dto.CreateRequestItem{item(a, "0")}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.wf.CreateRequest(ctx, requester, dto.CreateRequestRequest{WorkOrderID: 100, Items: []dto.CreateRequestItem{item("no-existe", "1")}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRequest_SistemaExternoCaidoNoBloquea(t *testing.T) {
	f := newFixture(t)
	f.dir.orders = map[int64]*WorkOrder{}
	a := f.material(t, "A", "10", nil)

	res := f.create(t, requester, 555, item(a, "1"))

	assert.Nil(t, f.status(t, res.ID).SegmentID)
	assert.Equal(t, "555", res.WorkOrder.Number)
}

// ============================================================================
// Decisiones
// ============================================================================

func TestWorkflow_EscenarioDosItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "10", strp("2"))
	b := f.material(t, "B", "10", strp("4.5"))
	res := f.create(t, requester, 100, item(a, "5"), item(b, "3"))
	itemA, itemB := res.Items[0].ID, res.Items[1].ID

	_, err := f.wf.DecideItem(ctx, coordinator, res.ID, itemA, approve())
	require.NoError(t, err)
	assert.Equal(t, entity.RequestPendingStage1, f.status(t, res.ID).Status)

	out, err := f.wf.DecideItem(ctx, coordinator, res.ID, itemB, approve())
	require.NoError(t, err)
	assert.Equal(t, entity.RequestPendingStage2, out.Status)
	for _, it := range out.Items {
		assert.Equal(t, entity.ItemPending, it.Status)
	}

	_, err = f.wf.DecideItem(ctx, controller, res.ID, itemA, reject("damaged"))
	require.NoError(t, err)
	assert.Equal(t, entity.RequestPendingStage2, f.status(t, res.ID).Status)
	assert.Empty(t, f.dir.pushes)

	out, err = f.wf.DecideItem(ctx, controller, res.ID, itemB, approve())
	require.NoError(t, err)
	assert.Equal(t, entity.RequestApproved, out.Status)

	require.Len(t, f.dir.pushes, 1)
	assert.Equal(t, int64(100), f.dir.pushes[0].workOrderID)
	assert.True(t, d("13.5").Equal(f.dir.pushes[0].amount), "push %s", f.dir.pushes[0].amount)
	assert.True(t, d("10").Equal(f.balance(t, a)), "A liberado")
	assert.True(t, d("7").Equal(f.balance(t, b)))

	req := f.status(t, res.ID)
	assert.Equal(t, "damaged", req.Item(itemA).RejectionReason)
	require.NotNil(t, req.ApproverID)
	assert.Equal(t, controller.UserID, *req.ApproverID)
	require.NotNil(t, req.Item(itemB).ApprovedCost)
	assert.Equal(t, 1, f.rec.finalized[entity.RequestApproved])
	assert.Equal(t, 4, f.rec.decisions)
}

func TestWorkflow_CostoPromedioNilCuentaCero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "3", nil)
	res := f.create(t, requester, 100, item(a, "2"))
	id := res.Items[0].ID

	_, err := f.wf.DecideItem(ctx, coordinator, res.ID, id, approve())
	require.NoError(t, err)
	out, err := f.wf.DecideItem(ctx, controller, res.ID, id, approve())
	require.NoError(t, err)

	assert.Equal(t, entity.RequestApproved, out.Status)
	require.NotNil(t, out.Items[0].ApprovedCost)
	assert.True(t, out.Items[0].ApprovedCost.IsZero())
	assert.Empty(t, f.dir.pushes, "total cero no se envía")
	assert.Zero(t, f.rec.undelivered)
}

func TestWorkflow_PushFallaLaSolicitudIgualQuedaAprobada(t *testing.T) {
	f := newFixture(t)
	f.dir.pushFails = true
	ctx := context.Background()
	a := f.material(t, "A", "3", strp("10"))
	res := f.create(t, requester, 100, item(a, "1"))
	id := res.Items[0].ID

	_, err := f.wf.DecideItem(ctx, coordinator, res.ID, id, approve())
	require.NoError(t, err)
	out, err := f.wf.DecideItem(ctx, controller, res.ID, id, approve())

	require.NoError(t, err)
	assert.Equal(t, entity.RequestApproved, out.Status)
	assert.Equal(t, entity.RequestApproved, f.status(t, res.ID).Status)
	assert.Equal(t, 1, f.dir.calls["push"])
	assert.Equal(t, 1, f.rec.undelivered)
}

func TestWorkflow_RepeticionEsIdempotente(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "3", strp("10"))
	res := f.create(t, requester, 100, item(a, "1"))
	id := res.Items[0].ID

	_, err := f.wf.DecideItem(ctx, coordinator, res.ID, id, approve())
	require.NoError(t, err)
	_, err = f.wf.DecideItem(ctx, controller, res.ID, id, approve())
	require.NoError(t, err)

	out, err := f.wf.DecideItem(ctx, admin, res.ID, id, approve())
	require.NoError(t, err)
	assert.Equal(t, entity.RequestApproved, out.Status)
	out, err = f.wf.DecideItem(ctx, controller, res.ID, id, reject("tarde"))
	require.NoError(t, err)
	assert.Equal(t, entity.ItemApproved, out.Items[0].Status)

	assert.Len(t, f.dir.pushes, 1)
	assert.True(t, d("2").Equal(f.balance(t, a)))
}

func TestWorkflow_TodosRechazadosEnPrimeraLinea(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "10", nil)
	res := f.create(t, requester, 100, item(a, "4"), item(a, "1"))

	_, err := f.wf.DecideItem(ctx, coordinator, res.ID, res.Items[0].ID, reject("no corresponde"))
	require.NoError(t, err)
	out, err := f.wf.DecideItem(ctx, coordinator, res.ID, res.Items[1].ID, reject("no corresponde"))
	require.NoError(t, err)

	assert.Equal(t, entity.RequestRejected, out.Status)
	assert.True(t, d("10").Equal(f.balance(t, a)))
	assert.Equal(t, 1, f.rec.finalized[entity.RequestRejected])
}

func TestWorkflow_AdminActuaComoEtapaActual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "10", strp("1.5"))
	res := f.create(t, requester, 100, item(a, "2"))
	id := res.Items[0].ID

	out, err := f.wf.DecideItem(ctx, admin, res.ID, id, approve())
	require.NoError(t, err)
	assert.Equal(t, entity.RequestPendingStage2, out.Status)

	out, err = f.wf.DecideItem(ctx, admin, res.ID, id, approve())
	require.NoError(t, err)
	assert.Equal(t, entity.RequestApproved, out.Status)
	require.Len(t, f.dir.pushes, 1)
	assert.True(t, d("3").Equal(f.dir.pushes[0].amount))
}

func TestDecideItem_Errores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "10", nil)
	res := f.create(t, requester, 100, item(a, "1"))
	id := res.Items[0].ID

	tests := []struct {
		name   string
		actor  entity.Actor
		reqID  string
		itemID string
		in     dto.DecisionRequest
		want   error
	}{
		{"etapa distinta", controller, res.ID, id, approve(), domain.ErrStageMismatch},
		{"solicitante no decide", requester, res.ID, id, approve(), domain.ErrForbidden},
		{"rol vacío", entity.Actor{UserID: 1}, res.ID, id, approve(), domain.ErrForbidden},
		{"rechazo sin motivo", coordinator, res.ID, id, reject("   "), domain.ErrValidation},
		{"acción inválida", coordinator, res.ID, id, dto.DecisionRequest{Action: "APROVAR"}, domain.ErrValidation},
		{"ítem inexistente", coordinator, res.ID, "otro", approve(), domain.ErrNotFound},
		{"solicitud inexistente", coordinator, "nada", id, approve(), domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.wf.DecideItem(ctx, tt.actor, tt.reqID, tt.itemID, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, entity.ItemPending, f.status(t, res.ID).Item(id).Status)
	assert.True(t, d("9").Equal(f.balance(t, a)))
}

func TestDecideItem_AccionSinDistincionDeMayusculas(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	res := f.create(t, requester, 100, item(a, "1"))

	out, err := f.wf.DecideItem(context.Background(), coordinator, res.ID, res.Items[0].ID, dto.DecisionRequest{Action: " approve "})
	require.NoError(t, err)
	assert.Equal(t, entity.RequestPendingStage2, out.Status)
}

// ============================================================================
// Decisiones por lote
// ============================================================================

func TestDecideBatch_UnPushPorOrdenDeTrabajo(t *testing.T) {
	f := newFixture(t)
	f.dir.withWorkOrder(200, 7, "Sitio Sur")
	ctx := context.Background()
	a := f.material(t, "A", "100", strp("2"))
	b := f.material(t, "B", "100", strp("3"))

	r1 := f.create(t, requester, 100, item(a, "1"), item(b, "1")) // 2 + 3
	r2 := f.create(t, requester, 100, item(a, "5"))               // 10
	r3 := f.create(t, requester, 200, item(b, "2"))               // 6
	ids := []string{r1.Items[0].ID, r1.Items[1].ID, r2.Items[0].ID, r3.Items[0].ID}

	first, err := f.wf.DecideBatch(ctx, coordinator, dto.BatchDecisionRequest{ItemIDs: append(ids, "fantasma"), Action: "APPROVE"})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, first.Decided)
	require.Len(t, first.Skipped, 1)
	assert.Equal(t, "fantasma", first.Skipped[0].ItemID)
	assert.Len(t, first.Requests, 3)

	_, err = f.wf.DecideBatch(ctx, controller, dto.BatchDecisionRequest{ItemIDs: ids, Action: "APPROVE"})
	require.NoError(t, err)

	require.Len(t, f.dir.pushes, 2)
	got := map[int64]decimal.Decimal{}
	for _, p := range f.dir.pushes {
		got[p.workOrderID] = p.amount
	}
	assert.True(t, d("15").Equal(got[100]), "OS 100: %s", got[100])
	assert.True(t, d("6").Equal(got[200]), "OS 200: %s", got[200])
	for _, r := range []string{r1.ID, r2.ID, r3.ID} {
		assert.Equal(t, entity.RequestApproved, f.status(t, r).Status)
	}
}

func TestDecideBatch_OmiteEtapaDistintaYYaDecididos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "100", nil)
	r1 := f.create(t, requester, 100, item(a, "1"), item(a, "1"))
	r2 := f.create(t, requester, 100, item(a, "1"))

	_, err := f.wf.DecideItem(ctx, coordinator, r2.ID, r2.Items[0].ID, approve()) // r2 pasa a etapa 2
	require.NoError(t, err)
	_, err = f.wf.DecideItem(ctx, coordinator, r1.ID, r1.Items[0].ID, reject("sobra"))
	require.NoError(t, err)

	res, err := f.wf.DecideBatch(ctx, coordinator, dto.BatchDecisionRequest{
		ItemIDs: []string{r1.Items[0].ID, r1.Items[1].ID, r2.Items[0].ID, r1.Items[1].ID},
		Action:  "REJECT", Reason: "lote",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{r1.Items[1].ID}, res.Decided)
	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.ItemID] = s.Reason
	}
	assert.Equal(t, skipAlreadyDone, reasons[r1.Items[0].ID])
	assert.Equal(t, skipStageMismatch, reasons[r2.Items[0].ID])
	assert.Equal(t, entity.RequestRejected, f.status(t, r1.ID).Status)
	assert.True(t, d("99").Equal(f.balance(t, a)), "sólo r2 sigue reservado")
}

func TestDecideBatch_Validaciones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wf.DecideBatch(ctx, coordinator, dto.BatchDecisionRequest{ItemIDs: []string{" ", ""}, Action: "APPROVE"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.wf.DecideBatch(ctx, coordinator, dto.BatchDecisionRequest{ItemIDs: []string{"x"}, Action: "REJECT"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.wf.DecideBatch(ctx, requester, dto.BatchDecisionRequest{ItemIDs: []string{"x"}, Action: "APPROVE"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// ============================================================================
// Listados
// ============================================================================

func TestListPending_CoordinadorSinSegmentoVeVacio(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	f.create(t, requester, 100, item(a, "1"))

	res, err := f.wf.ListPending(context.Background(), entity.Actor{UserID: 99, Role: entity.RoleFirstLine})

	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, res.Total)
}

func TestListPending_CoordinadorVeSoloSuSegmento(t *testing.T) {
	f := newFixture(t)
	f.dir.withWorkOrder(300, 8, "Otro")
	a := f.material(t, "A", "10", nil)
	mine := f.create(t, requester, 100, item(a, "1"))
	f.create(t, requester, 300, item(a, "1"))

	res, err := f.wf.ListPending(context.Background(), coordinator)

	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, mine.ID, res.Items[0].ID)
	assert.Equal(t, "OS-100", res.Items[0].WorkOrder.Number)
}

func TestListPending_ResuelveSegmentoPendienteConCachePorLlamada(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	delete(f.dir.orders, 100)
	for i := 0; i < 3; i++ {
		f.create(t, requester, 100, item(a, "1"))
	}
	f.dir.withWorkOrder(100, 7, "Sitio Norte")
	before := f.dir.calls["work_order"]

	res, err := f.wf.ListPending(context.Background(), coordinator)

	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, 1, f.dir.calls["work_order"]-before, "una consulta por orden de trabajo en la llamada")

	list, err := f.store.Requests().List(context.Background(), repository.RequestFilter{SegmentUnresolved: true})
	require.NoError(t, err)
	assert.Empty(t, list, "los segmentos resueltos quedan persistidos")
}

func TestListPending_PorRol(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.material(t, "A", "10", nil)
	r1 := f.create(t, requester, 100, item(a, "1"))
	r2 := f.create(t, entity.Actor{UserID: 6, Role: entity.RoleRequester}, 100, item(a, "1"))
	_, err := f.wf.DecideItem(ctx, coordinator, r2.ID, r2.Items[0].ID, approve())
	require.NoError(t, err)

	ids := func(res *dto.RequestListResponse) []string {
		var out []string
		for _, r := range res.Items {
			out = append(out, r.ID)
		}
		return out
	}

	res, err := f.wf.ListPending(ctx, controller)
	require.NoError(t, err)
	assert.Equal(t, []string{r2.ID}, ids(res))

	res, err = f.wf.ListPending(ctx, admin)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{r1.ID, r2.ID}, ids(res))

	res, err = f.wf.ListPending(ctx, requester)
	require.NoError(t, err)
	assert.Equal(t, []string{r1.ID}, ids(res))

	_, err = f.wf.ListPending(ctx, entity.Actor{UserID: 1, Role: "OTRO"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListHistory_RangoDeFechasYLimite(t *testing.T) {
	f := newFixture(t)
	f.wf.cfg.HistoryLimit = 2
	a := f.material(t, "A", "10", nil)
	at := func(s string) { f.wf.now = func() time.Time { return mustTime(s) } }

	at("2026-03-01T10:00:00Z")
	old := f.create(t, requester, 100, item(a, "1"))
	at("2026-03-10T23:59:00Z")
	mid := f.create(t, requester, 100, item(a, "1"))
	at("2026-03-11T08:00:00Z")
	last := f.create(t, requester, 100, item(a, "1"))
	at("2026-03-12T08:00:00Z")
	newest := f.create(t, requester, 100, item(a, "1"))
	f.wf.now = func() time.Time { return mustTime("2026-03-20T12:00:00Z") }

	res, err := f.wf.ListHistory(context.Background(), admin, dto.HistoryQuery{From: "2026-03-01", To: "2026-03-10"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.False(t, res.Truncated)
	assert.Equal(t, mid.ID, res.Items[0].ID, "más reciente primero; 'to' incluye el día completo")
	assert.Equal(t, old.ID, res.Items[1].ID)

	res, err = f.wf.ListHistory(context.Background(), admin, dto.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 2, "corte por HistoryLimit")
	assert.True(t, res.Truncated)
	assert.Equal(t, newest.ID, res.Items[0].ID)
	assert.Equal(t, last.ID, res.Items[1].ID)

	_, err = f.wf.ListHistory(context.Background(), admin, dto.HistoryQuery{From: "2026-03-10", To: "2026-03-01"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.wf.ListHistory(context.Background(), admin, dto.HistoryQuery{From: "10/03/2026"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListHistory_SolicitanteVeSoloLasSuyas(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	mine := f.create(t, requester, 100, item(a, "1"))
	f.create(t, entity.Actor{UserID: 6, Role: entity.RoleRequester}, 100, item(a, "1"))

	res, err := f.wf.ListHistory(context.Background(), requester, dto.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, mine.ID, res.Items[0].ID)
}

// ============================================================================
// Detalle y enriquecimiento
// ============================================================================

func TestGetRequest_PlaceholdersSinSistemaExterno(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	res := f.create(t, requester, 100, item(a, "1"))
	f.dir.orders = map[int64]*WorkOrder{}
	f.dir.users = map[int64]*User{}

	got, err := f.wf.GetRequest(context.Background(), admin, res.ID)

	require.NoError(t, err)
	assert.Equal(t, "Solicitante #5", got.RequesterName)
	assert.Equal(t, "100", got.WorkOrder.Number)
	assert.Equal(t, dto.SegmentResponse{ID: 0, Name: "-"}, got.WorkOrder.Segment)
	assert.Equal(t, "Contrato no informado", got.LineItem.Description)
}

func TestGetRequest_ItemContratado(t *testing.T) {
	f := newFixture(t)
	f.dir.withUser(requester.UserID, "Juan Pérez")
	f.dir.lines[9] = &LineItem{ID: 9, Description: "Instalación de antena"}
	a := f.material(t, "A", "10", nil)
	ctx := context.Background()

	found, err := f.wf.CreateRequest(ctx, requester, dto.CreateRequestRequest{WorkOrderID: 100, LineItemID: 9, Items: []dto.CreateRequestItem{item(a, "1")}})
	require.NoError(t, err)
	missing, err := f.wf.CreateRequest(ctx, requester, dto.CreateRequestRequest{WorkOrderID: 100, LineItemID: 8, Items: []dto.CreateRequestItem{item(a, "1")}})
	require.NoError(t, err)

	assert.Equal(t, "Juan Pérez", found.RequesterName)
	assert.Equal(t, "Instalación de antena", found.LineItem.Description)
	assert.Equal(t, "Objeto no encontrado", missing.LineItem.Description)
}

func TestGetRequest_Permisos(t *testing.T) {
	f := newFixture(t)
	f.dir.withWorkOrder(300, 8, "Otro")
	a := f.material(t, "A", "10", nil)
	res := f.create(t, requester, 300, item(a, "1"))
	ctx := context.Background()

	_, err := f.wf.GetRequest(ctx, requester, res.ID)
	assert.NoError(t, err)
	_, err = f.wf.GetRequest(ctx, entity.Actor{UserID: 6, Role: entity.RoleRequester}, res.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.wf.GetRequest(ctx, coordinator, res.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.wf.GetRequest(ctx, controller, res.ID)
	assert.NoError(t, err)
	_, err = f.wf.GetRequest(ctx, admin, "nada")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// ============================================================================
// Escala, orden de bloqueo y concurrencia
// ============================================================================

func TestCreateRequest_CantidadConMasDeCuatroDecimales(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)

	_, err := f.wf.CreateRequest(context.Background(), requester, dto.CreateRequestRequest{
		WorkOrderID: 100, Items: []dto.CreateRequestItem{item(a, "1.00005")},
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.True(t, d("10").Equal(f.balance(t, a)))
}

// recordingMaterials anota el primer bloqueo de cada material dentro de una tx.
type recordingMaterials struct {
	repository.MaterialRepository
	seen  map[string]bool
	order *[]string
}

func (r *recordingMaterials) GetForUpdate(ctx context.Context, id string) (*entity.Material, error) {
	if !r.seen[id] {
		r.seen[id] = true
		*r.order = append(*r.order, id)
	}
	return r.MaterialRepository.GetForUpdate(ctx, id)
}

// recordingTx envuelve el runner en memoria y guarda el orden de bloqueo de la última tx.
type recordingTx struct {
	inner *memory.TxRunner
	order []string
}

func (r *recordingTx) Run(ctx context.Context, fn func(
	materials repository.MaterialRepository,
	entries repository.MaterialEntryRepository,
	requests repository.RequestRepository,
) error) error {
	return r.inner.Run(ctx, func(m repository.MaterialRepository, e repository.MaterialEntryRepository, q repository.RequestRepository) error {
		r.order = nil
		return fn(&recordingMaterials{MaterialRepository: m, seen: map[string]bool{}, order: &r.order}, e, q)
	})
}

func newRecordingFixture(t *testing.T) (*fixture, *recordingTx) {
	t.Helper()
	f := newFixture(t)
	tx := &recordingTx{inner: memory.NewTxRunner(f.store)}
	f.wf = NewWorkflow(tx, inventory.NewLedger(), f.store.Requests(), f.dir, f.rec, logger.Nop(),
		Config{HistoryLimit: 50, HistoryDefaultDays: 30, EnrichConcurrency: 4})
	return f, tx
}

func TestCreateRequest_BloqueaMaterialesEnOrdenDeID(t *testing.T) {
	f, tx := newRecordingFixture(t)
	a := f.material(t, "A", "10", nil)
	b := f.material(t, "B", "10", nil)

	f.create(t, requester, 100, item(b, "1"), item(a, "1"))

	assert.Equal(t, []string{a, b}, tx.order)
}

func TestDecideBatch_RechazoCruzadoBloqueaEnOrden(t *testing.T) {
	f, tx := newRecordingFixture(t)
	a := f.material(t, "A", "10", nil)
	b := f.material(t, "B", "10", nil)
	r1 := f.create(t, requester, 100, item(b, "1"), item(a, "2"))
	r2 := f.create(t, requester, 100, item(a, "3"), item(b, "4"))

	res, err := f.wf.DecideBatch(context.Background(), coordinator, dto.BatchDecisionRequest{
		Action: "REJECT", Reason: "sin obra",
		ItemIDs: []string{r2.Items[1].ID, r1.Items[0].ID, r2.Items[0].ID, r1.Items[1].ID},
	})

	require.NoError(t, err)
	assert.Len(t, res.Decided, 4)
	assert.Equal(t, []string{a, b}, tx.order)
	assert.True(t, d("10").Equal(f.balance(t, a)))
	assert.True(t, d("10").Equal(f.balance(t, b)))
}

func TestDecideItem_RechazosConcurrentesLiberanUnaVez(t *testing.T) {
	f := newFixture(t)
	a := f.material(t, "A", "10", nil)
	res := f.create(t, requester, 100, item(a, "4"))
	itemID := res.Items[0].ID

	const n = 20
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.wf.DecideItem(context.Background(), coordinator, res.ID, itemID, reject("duplicado"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, d("10").Equal(f.balance(t, a)), "saldo %s", f.balance(t, a))
	assert.Equal(t, entity.RequestRejected, f.status(t, res.ID).Status)
	assert.Equal(t, 1, f.rec.finalized[entity.RequestRejected])
}

// El tope de pendientes es propio y no depende del tope del historial.
func TestListPending_TopePropioYAviso(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.wf = NewWorkflow(memory.NewTxRunner(f.store), inventory.NewLedger(), f.store.Requests(), f.dir, f.rec,
		logger.NewWriter(&buf, "warn"), Config{HistoryLimit: 1, PendingLimit: 3, HistoryDefaultDays: 30, EnrichConcurrency: 2})
	a := f.material(t, "A", "10", nil)
	for i := 0; i < 3; i++ {
		f.create(t, requester, 100, item(a, "1"))
	}

	res, err := f.wf.ListPending(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.False(t, res.Truncated)
	assert.Empty(t, buf.String())

	f.create(t, requester, 100, item(a, "1"))
	res, err = f.wf.ListPending(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.True(t, res.Truncated)
	assert.Contains(t, buf.String(), "listado cortado en el tope configurado")
	assert.Contains(t, buf.String(), `"limit":3`)
}
