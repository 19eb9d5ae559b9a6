package approval

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/jhoicas/materiales-api/internal/application/dto"
	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"golang.org/x/sync/errgroup"
)

const dateLayout = "2006-01-02"

// ListPending lista las solicitudes que el actor debe revisar:
// ADMIN todas con algún ítem pendiente, SECOND_LINE las de PENDING_STAGE_2, FIRST_LINE las de
// PENDING_STAGE_1 de sus segmentos y REQUESTER sus propias solicitudes abiertas.
// Se corta en PendingLimit; si hay más, la respuesta sale con Truncated.
func (w *Workflow) ListPending(ctx context.Context, actor entity.Actor) (*dto.RequestListResponse, error) {
	cache := NewSegmentCache(w.dir)
	f := repository.RequestFilter{Limit: w.cfg.PendingLimit}

	switch actor.Role {
	case entity.RoleAdmin:
		f.WithPendingItems = true
	case entity.RoleSecondLine:
		f.Statuses = []string{entity.RequestPendingStage2}
	case entity.RoleFirstLine:
		f.Statuses = []string{entity.RequestPendingStage1}
		segments, err := w.reviewerSegments(ctx, cache, actor, f)
		if err != nil {
			return nil, err
		}
		if len(segments) == 0 {
			return emptyList(), nil
		}
		f.SegmentIDs = segments
	case entity.RoleRequester:
		uid := actor.UserID
		f.RequesterID = &uid
		f.Statuses = []string{entity.RequestPendingStage1, entity.RequestPendingStage2}
	default:
		return nil, domain.ErrForbidden
	}
	return w.list(ctx, cache, f)
}

// ListHistory lista solicitudes en el rango [from, to] (días completos) con la misma partición por rol.
// Sin fechas usa los últimos HistoryDefaultDays días. El resultado se corta en HistoryLimit.
func (w *Workflow) ListHistory(ctx context.Context, actor entity.Actor, q dto.HistoryQuery) (*dto.RequestListResponse, error) {
	from, to, err := w.historyRange(q)
	if err != nil {
		return nil, err
	}
	cache := NewSegmentCache(w.dir)
	f := repository.RequestFilter{From: &from, To: &to, Limit: w.cfg.HistoryLimit}

	switch actor.Role {
	case entity.RoleAdmin:
	case entity.RoleSecondLine:
		f.Statuses = []string{entity.RequestPendingStage2, entity.RequestApproved, entity.RequestRejected}
	case entity.RoleFirstLine:
		segments, err := w.reviewerSegments(ctx, cache, actor, f)
		if err != nil {
			return nil, err
		}
		if len(segments) == 0 {
			return emptyList(), nil
		}
		f.SegmentIDs = segments
	case entity.RoleRequester:
		uid := actor.UserID
		f.RequesterID = &uid
	default:
		return nil, domain.ErrForbidden
	}
	return w.list(ctx, cache, f)
}

// GetRequest devuelve una solicitud enriquecida si el actor puede verla.
func (w *Workflow) GetRequest(ctx context.Context, actor entity.Actor, id string) (*dto.RequestResponse, error) {
	req, err := w.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("solicitud %s: %w", id, domain.ErrNotFound)
	}
	cache := NewSegmentCache(w.dir)

	switch actor.Role {
	case entity.RoleAdmin, entity.RoleSecondLine:
	case entity.RoleFirstLine:
		if req.SegmentID == nil {
			w.resolveSegment(ctx, cache, req)
		}
		segments := cache.User(ctx, actor.UserID).SegmentIDs()
		if req.SegmentID == nil || !slices.Contains(segments, *req.SegmentID) {
			return nil, fmt.Errorf("solicitud %s fuera de los segmentos del usuario: %w", id, domain.ErrForbidden)
		}
	case entity.RoleRequester:
		if req.RequesterID != actor.UserID {
			return nil, fmt.Errorf("solicitud %s de otro solicitante: %w", id, domain.ErrForbidden)
		}
	default:
		return nil, domain.ErrForbidden
	}
	res := w.toResponse(ctx, cache, req)
	return &res, nil
}

// reviewerSegments resuelve los segmentos del revisor de primera línea y, antes de filtrar,
// intenta resolver las solicitudes candidatas que todavía no tienen segmento.
func (w *Workflow) reviewerSegments(ctx context.Context, cache *SegmentCache, actor entity.Actor, f repository.RequestFilter) ([]int64, error) {
	segments := cache.User(ctx, actor.UserID).SegmentIDs()
	if len(segments) == 0 {
		w.log.Debug().Int64("user_id", actor.UserID).Msg("revisor sin segmentos resolubles")
		return nil, nil
	}
	f.SegmentIDs = nil
	f.SegmentUnresolved = true
	unresolved, err := w.requests.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, req := range unresolved {
		w.resolveSegment(ctx, cache, req)
	}
	return segments, nil
}

// resolveSegment resuelve y persiste el segmento de la solicitud. Un fallo sólo se registra.
func (w *Workflow) resolveSegment(ctx context.Context, cache *SegmentCache, req *entity.Request) {
	segID, site := cache.Segment(ctx, req.WorkOrderID, req.LineItemID)
	if segID == nil {
		return
	}
	if err := w.requests.UpdateSegment(ctx, req.ID, *segID, site); err != nil {
		w.log.Warn().Err(err).Str("request_id", req.ID).Msg("no se pudo persistir el segmento resuelto")
		return
	}
	req.SegmentID = segID
	if site != "" {
		req.Site = site
	}
}

// list pide una fila de más para saber si el tope dejó solicitudes afuera.
func (w *Workflow) list(ctx context.Context, cache *SegmentCache, f repository.RequestFilter) (*dto.RequestListResponse, error) {
	limit := f.Limit
	f.Limit = limit + 1
	reqs, err := w.requests.List(ctx, f)
	if err != nil {
		return nil, err
	}
	truncated := len(reqs) > limit
	if truncated {
		reqs = reqs[:limit]
		w.log.Warn().
			Int("limit", limit).
			Strs("statuses", f.Statuses).
			Msg("listado cortado en el tope configurado")
	}
	items := w.enrich(ctx, cache, reqs)
	return &dto.RequestListResponse{Items: items, Total: len(items), Truncated: truncated}, nil
}

// enrich arma las respuestas en paralelo (acotado por EnrichConcurrency) compartiendo la caché de la llamada.
func (w *Workflow) enrich(ctx context.Context, cache *SegmentCache, reqs []*entity.Request) []dto.RequestResponse {
	out := make([]dto.RequestResponse, len(reqs))
	var g errgroup.Group
	g.SetLimit(w.cfg.EnrichConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = w.toResponse(ctx, cache, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// toResponse completa la solicitud con datos del sistema externo; lo que no se obtiene queda con placeholder.
func (w *Workflow) toResponse(ctx context.Context, cache *SegmentCache, req *entity.Request) dto.RequestResponse {
	res := dto.RequestResponse{
		ID:            req.ID,
		Status:        req.Status,
		Justification: req.Justification,
		RequesterID:   req.RequesterID,
		RequesterName: requesterPlaceholder(req.RequesterID),
		ApproverID:    req.ApproverID,
		WorkOrder: dto.WorkOrderResponse{
			ID:      req.WorkOrderID,
			Number:  strconv.FormatInt(req.WorkOrderID, 10),
			Site:    req.Site,
			Segment: dto.SegmentResponse{ID: noSegment.ID, Name: noSegment.Name},
		},
		LineItem:  dto.LineItemResponse{ID: req.LineItemID, Description: lineItemNotInformed},
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.UpdatedAt,
	}

	if u := cache.User(ctx, req.RequesterID); u != nil && u.Name != "" {
		res.RequesterName = u.Name
	}
	if wo := cache.WorkOrder(ctx, req.WorkOrderID); wo != nil {
		if wo.Number != "" {
			res.WorkOrder.Number = wo.Number
		}
		if res.WorkOrder.Site == "" {
			res.WorkOrder.Site = wo.Site
		}
		if wo.Segment != nil {
			res.WorkOrder.Segment = dto.SegmentResponse{ID: wo.Segment.ID, Name: wo.Segment.Name}
		}
	}
	if req.LineItemID > 0 {
		res.LineItem.Description = lineItemNotFound
		if li := cache.LineItem(ctx, req.LineItemID); li != nil && li.Description != "" {
			res.LineItem.Description = li.Description
		}
	}

	res.Items = make([]dto.RequestItemResponse, 0, len(req.Items))
	for _, it := range req.Items {
		res.Items = append(res.Items, dto.RequestItemResponse{
			ID:                  it.ID,
			MaterialID:          it.MaterialID,
			MaterialCode:        it.MaterialCode,
			MaterialDescription: it.MaterialDescription,
			UnitMeasure:         it.MaterialUnit,
			Quantity:            it.Quantity,
			Status:              it.Status,
			RejectionReason:     it.RejectionReason,
			ApprovedCost:        it.ApprovedCost,
			DecidedAt:           it.DecidedAt,
		})
	}
	return res
}

// historyRange interpreta las fechas en la zona local; to incluye el día completo (se devuelve exclusivo).
func (w *Workflow) historyRange(q dto.HistoryQuery) (from, to time.Time, err error) {
	now := w.now()
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	to = today.AddDate(0, 0, 1)
	if q.To != "" {
		day, perr := time.ParseInLocation(dateLayout, q.To, loc)
		if perr != nil {
			return from, to, fmt.Errorf("fecha 'to' inválida %q: %w", q.To, domain.ErrValidation)
		}
		to = day.AddDate(0, 0, 1)
	}
	from = to.AddDate(0, 0, -w.cfg.HistoryDefaultDays)
	if q.From != "" {
		day, perr := time.ParseInLocation(dateLayout, q.From, loc)
		if perr != nil {
			return from, to, fmt.Errorf("fecha 'from' inválida %q: %w", q.From, domain.ErrValidation)
		}
		from = day
	}
	if !from.Before(to) {
		return from, to, fmt.Errorf("rango de fechas vacío: %w", domain.ErrValidation)
	}
	return from, to, nil
}

func emptyList() *dto.RequestListResponse {
	return &dto.RequestListResponse{Items: []dto.RequestResponse{}, Total: 0}
}

// ToBatchResponse convierte el resultado del lote al DTO de salida.
func ToBatchResponse(r *BatchResult) dto.BatchDecisionResponse {
	res := dto.BatchDecisionResponse{
		Decided:  r.Decided,
		Skipped:  r.Skipped,
		Requests: r.Requests,
	}
	if res.Decided == nil {
		res.Decided = []string{}
	}
	if res.Skipped == nil {
		res.Skipped = []dto.SkippedItem{}
	}
	if res.Requests == nil {
		res.Requests = []string{}
	}
	return res
}
