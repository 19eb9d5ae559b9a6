// Package approval implementa el flujo de aprobación de solicitudes de materiales:
// creación con reserva de stock, decisiones por ítem o por lote y los listados por rol/segmento.
package approval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/materiales-api/internal/application/dto"
	"github.com/jhoicas/materiales-api/internal/application/inventory"
	"github.com/jhoicas/materiales-api/internal/domain"
	phase "github.com/jhoicas/materiales-api/internal/domain/approval"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	costs "github.com/jhoicas/materiales-api/internal/domain/inventory"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"github.com/jhoicas/materiales-api/pkg/logger"
	"github.com/shopspring/decimal"
)

// Config parámetros de los listados.
type Config struct {
	HistoryLimit       int
	PendingLimit       int
	HistoryDefaultDays int
	EnrichConcurrency  int
}

// Workflow orquesta la máquina de estados. Cada acción corre en una sola transacción;
// las llamadas al sistema externo se hacen antes (resolución de segmento) o después del commit (push de costo).
type Workflow struct {
	tx       inventory.TxRunner
	ledger   *inventory.Ledger
	requests repository.RequestRepository // lecturas fuera de tx
	dir      Directory
	rec      Recorder
	log      *logger.Logger
	cfg      Config
	now      func() time.Time
}

// NewWorkflow construye el flujo. rec puede ser nil.
func NewWorkflow(
	tx inventory.TxRunner,
	ledger *inventory.Ledger,
	requests repository.RequestRepository,
	dir Directory,
	rec Recorder,
	log *logger.Logger,
	cfg Config,
) *Workflow {
	if rec == nil {
		rec = nopRecorder{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 500
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = 1000
	}
	if cfg.HistoryDefaultDays <= 0 {
		cfg.HistoryDefaultDays = 30
	}
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = 1
	}
	return &Workflow{
		tx:       tx,
		ledger:   ledger,
		requests: requests,
		dir:      dir,
		rec:      rec,
		log:      log.Component("approval"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateRequest crea la solicitud en PENDING_STAGE_1 reservando el stock de cada ítem en la misma tx.
// El segmento y el sitio de la orden de trabajo se resuelven antes de abrir la transacción; si falla
// la solicitud queda sin segmento y se resuelve en el primer listado.
func (w *Workflow) CreateRequest(ctx context.Context, actor entity.Actor, in dto.CreateRequestRequest) (*dto.RequestResponse, error) {
	if actor.UserID <= 0 {
		return nil, domain.ErrUnauthorized
	}
	if in.WorkOrderID <= 0 || in.LineItemID < 0 || len(in.Items) == 0 {
		return nil, fmt.Errorf("solicitud sin orden de trabajo o sin ítems: %w", domain.ErrValidation)
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.MaterialID) == "" || !it.Quantity.IsPositive() {
			return nil, fmt.Errorf("ítem %d: material y cantidad positiva son obligatorios: %w", i+1, domain.ErrValidation)
		}
		if err := inventory.CheckScale(fmt.Sprintf("ítem %d: cantidad", i+1), it.Quantity); err != nil {
			return nil, err
		}
	}

	cache := NewSegmentCache(w.dir)
	segmentID, site := cache.Segment(ctx, in.WorkOrderID, in.LineItemID)

	now := w.now()
	req := &entity.Request{
		ID:            uuid.New().String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Justification: strings.TrimSpace(in.Justification),
		Status:        entity.RequestPendingStage1,
		RequesterID:   actor.UserID,
		WorkOrderID:   in.WorkOrderID,
		LineItemID:    in.LineItemID,
		SegmentID:     segmentID,
		Site:          site,
	}
	for _, it := range in.Items {
		req.Items = append(req.Items, entity.Item{
			ID:         uuid.New().String(),
			RequestID:  req.ID,
			MaterialID: strings.TrimSpace(it.MaterialID),
			Quantity:   it.Quantity,
			Status:     entity.ItemPending,
		})
	}

	var created *entity.Request
	err := w.tx.Run(ctx, func(
		materials repository.MaterialRepository,
		_ repository.MaterialEntryRepository,
		requests repository.RequestRepository,
	) error {
		ids := make([]string, len(req.Items))
		for i := range req.Items {
			ids[i] = req.Items[i].MaterialID
		}
		if err := w.ledger.LockAll(ctx, materials, ids); err != nil {
			return err
		}
		for i := range req.Items {
			m, err := w.ledger.Reserve(ctx, materials, req.Items[i].MaterialID, req.Items[i].Quantity)
			if err != nil {
				return err
			}
			req.Items[i].MaterialCode = m.Code
			req.Items[i].MaterialDescription = m.Description
			req.Items[i].MaterialUnit = m.UnitMeasure
		}
		if err := requests.Create(ctx, req); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.Info().
		Str("request_id", created.ID).
		Int64("work_order_id", created.WorkOrderID).
		Int("items", len(created.Items)).
		Bool("segment_resolved", created.SegmentID != nil).
		Msg("solicitud de materiales creada")

	res := w.toResponse(ctx, cache, created)
	return &res, nil
}

// BatchResult resultado de una decisión por lote.
type BatchResult struct {
	Decided  []string
	Skipped  []dto.SkippedItem
	Requests []string
}

// Motivos de ítems omitidos en lote.
const (
	skipNotFound      = "ítem no encontrado"
	skipAlreadyDone   = "ítem ya decidido"
	skipStageMismatch = "la solicitud no está en la etapa del revisor"
)

// DecideItem aplica la decisión sobre un ítem de la solicitud requestID.
// Un ítem ya decidido es un no-op (devuelve la solicitud sin cambios). Si la solicitud no está
// en la etapa del revisor devuelve ErrStageMismatch.
func (w *Workflow) DecideItem(ctx context.Context, actor entity.Actor, requestID, itemID string, in dto.DecisionRequest) (*dto.RequestResponse, error) {
	action, reason, err := parseDecision(actor, in.Action, in.Reason)
	if err != nil {
		return nil, err
	}

	var out *requestOutcome
	err = w.tx.Run(ctx, func(
		materials repository.MaterialRepository,
		_ repository.MaterialEntryRepository,
		requests repository.RequestRepository,
	) error {
		req, err := requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil || req.Item(itemID) == nil {
			return fmt.Errorf("ítem %s de la solicitud %s: %w", itemID, requestID, domain.ErrNotFound)
		}
		if req.Item(itemID).Status == entity.ItemPending {
			if _, ok := actor.Role.Stage(req.Status); !ok {
				return fmt.Errorf("solicitud %s en %s, rol %s: %w", req.ID, req.Status, actor.Role, domain.ErrStageMismatch)
			}
		}
		out, err = w.applyDecision(ctx, materials, requests, req, []string{itemID}, action, reason, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	w.afterCommit(ctx, action, []*requestOutcome{out})
	res := w.toResponse(ctx, NewSegmentCache(w.dir), out.req)
	return &res, nil
}

// DecideBatch aplica la misma decisión a varios ítems, posiblemente de distintas solicitudes.
// Los ítems inexistentes, ya decididos o de solicitudes en otra etapa se omiten y se informan.
// Las solicitudes se bloquean en orden de ID; el costo de las que finalizan se envía una vez por orden de trabajo.
func (w *Workflow) DecideBatch(ctx context.Context, actor entity.Actor, in dto.BatchDecisionRequest) (*BatchResult, error) {
	action, reason, err := parseDecision(actor, in.Action, in.Reason)
	if err != nil {
		return nil, err
	}
	itemIDs := dedupe(in.ItemIDs)
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("lote sin ítems: %w", domain.ErrValidation)
	}

	var (
		result   BatchResult
		outcomes []*requestOutcome
	)
	err = w.tx.Run(ctx, func(
		materials repository.MaterialRepository,
		_ repository.MaterialEntryRepository,
		requests repository.RequestRepository,
	) error {
		result, outcomes = BatchResult{}, nil

		owners, err := requests.FindRequestIDsByItems(ctx, itemIDs)
		if err != nil {
			return err
		}
		byRequest := map[string][]string{}
		for _, id := range itemIDs {
			reqID, ok := owners[id]
			if !ok {
				result.Skipped = append(result.Skipped, dto.SkippedItem{ItemID: id, Reason: skipNotFound})
				continue
			}
			byRequest[reqID] = append(byRequest[reqID], id)
		}
		reqIDs := make([]string, 0, len(byRequest))
		for id := range byRequest {
			reqIDs = append(reqIDs, id)
		}
		sort.Strings(reqIDs)

		// Primero todas las solicitudes en orden de ID, luego los materiales en orden de ID.
		type locked struct {
			req *entity.Request
			ids []string
		}
		var eligible []locked
		var toRelease []string
		for _, reqID := range reqIDs {
			ids := byRequest[reqID]
			req, err := requests.GetForUpdate(ctx, reqID)
			if err != nil {
				return err
			}
			if req == nil {
				for _, id := range ids {
					result.Skipped = append(result.Skipped, dto.SkippedItem{ItemID: id, Reason: skipNotFound})
				}
				continue
			}
			if _, ok := actor.Role.Stage(req.Status); !ok {
				for _, id := range ids {
					why := skipStageMismatch
					if it := req.Item(id); it == nil {
						why = skipNotFound
					} else if it.Status != entity.ItemPending {
						why = skipAlreadyDone
					}
					result.Skipped = append(result.Skipped, dto.SkippedItem{ItemID: id, Reason: why})
				}
				continue
			}
			eligible = append(eligible, locked{req: req, ids: ids})
			if action == entity.ActionReject {
				for _, id := range ids {
					if it := req.Item(id); it != nil && it.Status == entity.ItemPending {
						toRelease = append(toRelease, it.MaterialID)
					}
				}
			}
		}
		if err := w.ledger.LockAll(ctx, materials, toRelease); err != nil {
			return err
		}

		for _, e := range eligible {
			out, err := w.applyDecision(ctx, materials, requests, e.req, e.ids, action, reason, actor)
			if err != nil {
				return err
			}
			result.Decided = append(result.Decided, out.decided...)
			for _, id := range out.skipped {
				result.Skipped = append(result.Skipped, dto.SkippedItem{ItemID: id, Reason: skipAlreadyDone})
			}
			if len(out.decided) > 0 {
				result.Requests = append(result.Requests, e.req.ID)
			}
			outcomes = append(outcomes, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.afterCommit(ctx, action, outcomes)
	return &result, nil
}

// requestOutcome efecto de una decisión sobre una solicitud, para el trabajo post-commit.
type requestOutcome struct {
	req     *entity.Request
	stage   entity.Role
	decided []string
	skipped []string
	phase   phase.Outcome
}

// applyDecision muta los ítems PENDING indicados, avanza la fase y persiste. Requiere la solicitud
// bloqueada y en la etapa del actor (salvo que ningún ítem esté pendiente).
func (w *Workflow) applyDecision(
	ctx context.Context,
	materials repository.MaterialRepository,
	requests repository.RequestRepository,
	req *entity.Request,
	itemIDs []string,
	action entity.Action,
	reason string,
	actor entity.Actor,
) (*requestOutcome, error) {
	out := &requestOutcome{req: req}
	stage, ok := actor.Role.Stage(req.Status)
	now := w.now()

	for _, id := range itemIDs {
		it := req.Item(id)
		if it == nil || it.Status != entity.ItemPending || !ok {
			out.skipped = append(out.skipped, id)
			continue
		}
		switch action {
		case entity.ActionApprove:
			it.Status = entity.ItemApproved
			it.RejectionReason = ""
			it.ApprovedCost = nil
			if stage == entity.RoleSecondLine {
				m, err := materials.GetByID(ctx, it.MaterialID)
				if err != nil {
					return nil, err
				}
				var avg *decimal.Decimal
				if m != nil {
					avg = m.AvgCost
				}
				cost := costs.ItemCost(avg, it.Quantity)
				it.ApprovedCost = &cost
			}
		case entity.ActionReject:
			if err := w.ledger.Release(ctx, materials, it.MaterialID, it.Quantity); err != nil {
				return nil, err
			}
			it.Status = entity.ItemRejected
			it.RejectionReason = reason
			it.ApprovedCost = nil
		}
		decidedAt := now
		it.DecidedAt = &decidedAt
		out.decided = append(out.decided, id)
	}
	if len(out.decided) == 0 {
		return out, nil
	}

	out.stage = stage
	approver := actor.UserID
	req.ApproverID = &approver
	out.phase = phase.Advance(req, stage)
	req.UpdatedAt = now
	if err := requests.Save(ctx, req); err != nil {
		return nil, err
	}
	return out, nil
}

// afterCommit registra métricas y envía el costo de las solicitudes finalizadas, sumado por orden de trabajo.
// El push no se reintenta: si falla queda registrado en el log y en material_cost_push_undelivered_total.
func (w *Workflow) afterCommit(ctx context.Context, action entity.Action, outcomes []*requestOutcome) {
	totals := map[int64]decimal.Decimal{}
	for _, o := range outcomes {
		if len(o.decided) == 0 {
			continue
		}
		w.rec.AddDecisions(string(action), string(o.stage), len(o.decided))
		if o.phase.Changed {
			w.log.Info().
				Str("request_id", o.req.ID).
				Str("from", o.phase.From).
				Str("to", o.phase.To).
				Int("reset_items", o.phase.ResetItems).
				Msg("solicitud cambió de estado")
			if o.req.IsFinal() {
				w.rec.IncFinalized(o.req.Status)
			}
		}
		if o.phase.Finalized {
			totals[o.req.WorkOrderID] = totals[o.req.WorkOrderID].Add(o.phase.TotalCost)
		}
	}
	if len(totals) == 0 {
		return
	}

	// El push no debe depender de que el cliente HTTP siga conectado.
	pushCtx := context.WithoutCancel(ctx)
	woIDs := make([]int64, 0, len(totals))
	for id := range totals {
		woIDs = append(woIDs, id)
	}
	sort.Slice(woIDs, func(i, j int) bool { return woIDs[i] < woIDs[j] })
	for _, woID := range woIDs {
		total := totals[woID]
		if !total.IsPositive() {
			continue
		}
		if !w.dir.PushMaterialCost(pushCtx, woID, total) {
			w.rec.IncUndeliveredCost()
			w.log.Error().
				Int64("work_order_id", woID).
				Str("amount", total.String()).
				Msg("costo de materiales no entregado a la orden de trabajo")
			continue
		}
		w.log.Info().Int64("work_order_id", woID).Str("amount", total.String()).Msg("costo de materiales enviado")
	}
}

// parseDecision valida rol, acción y motivo antes de abrir la transacción.
func parseDecision(actor entity.Actor, rawAction, rawReason string) (entity.Action, string, error) {
	if !actor.Role.CanDecide() {
		return "", "", fmt.Errorf("rol %q no puede decidir: %w", actor.Role, domain.ErrForbidden)
	}
	action, err := entity.ParseAction(rawAction)
	if err != nil {
		return "", "", fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	reason := strings.TrimSpace(rawReason)
	if action == entity.ActionReject && reason == "" {
		return "", "", fmt.Errorf("para rechazar es obligatorio informar el motivo: %w", domain.ErrValidation)
	}
	return action, reason, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
