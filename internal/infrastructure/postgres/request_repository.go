package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
)

var _ repository.RequestRepository = (*RequestRepo)(nil)

const requestColumns = `id, created_at, updated_at, justification, status, requester_id, work_order_id, line_item_id, segment_id, site, approver_id`

// RequestRepo solicitudes e ítems sobre PostgreSQL (usable con pool o tx).
type RequestRepo struct {
	q Querier
}

// NewRequestRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRequestRepository(q Querier) *RequestRepo {
	return &RequestRepo{q: q}
}

// Create persiste la solicitud y sus ítems (en la tx del caller).
func (r *RequestRepo) Create(ctx context.Context, req *entity.Request) error {
	query := `
		INSERT INTO material_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		req.ID, req.CreatedAt, req.UpdatedAt, req.Justification, req.Status, req.RequesterID,
		req.WorkOrderID, req.LineItemID, req.SegmentID, req.Site, req.ApproverID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert material request: %w", err)
	}

	itemQuery := `
		INSERT INTO material_request_items (id, request_id, material_id, quantity, status, rejection_reason, approved_cost, decided_at, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for i, it := range req.Items {
		_, err := r.q.Exec(ctx, itemQuery,
			it.ID, req.ID, it.MaterialID, it.Quantity, it.Status, it.RejectionReason, it.ApprovedCost, it.DecidedAt, i,
		)
		if err != nil {
			return fmt.Errorf("insert material request item: %w", err)
		}
	}
	return nil
}

// GetByID obtiene la solicitud con sus ítems.
func (r *RequestRepo) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM material_requests WHERE id = $1`, id)
}

// GetForUpdate bloquea la fila de la solicitud; los ítems sólo se modifican con la solicitud bloqueada.
func (r *RequestRepo) GetForUpdate(ctx context.Context, id string) (*entity.Request, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM material_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *RequestRepo) getOne(ctx context.Context, query, id string) (*entity.Request, error) {
	req, err := scanRequest(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get material request: %w", err)
	}
	if err := r.loadItems(ctx, []*entity.Request{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// FindRequestIDsByItems devuelve itemID -> requestID.
func (r *RequestRepo) FindRequestIDsByItems(ctx context.Context, itemIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `SELECT id, request_id FROM material_request_items WHERE id::text = ANY($1)`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("find requests by items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, reqID string
		if err := rows.Scan(&itemID, &reqID); err != nil {
			return nil, fmt.Errorf("scan item owner: %w", err)
		}
		out[itemID] = reqID
	}
	return out, rows.Err()
}

// Save persiste estado, aprobador y los campos de decisión de cada ítem.
func (r *RequestRepo) Save(ctx context.Context, req *entity.Request) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE material_requests SET status = $2, approver_id = $3, updated_at = $4 WHERE id = $1`,
		req.ID, req.Status, req.ApproverID, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update material request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	itemQuery := `
		UPDATE material_request_items
		SET status = $3, rejection_reason = $4, approved_cost = $5, decided_at = $6
		WHERE id = $1 AND request_id = $2`
	for _, it := range req.Items {
		if _, err := r.q.Exec(ctx, itemQuery, it.ID, req.ID, it.Status, it.RejectionReason, it.ApprovedCost, it.DecidedAt); err != nil {
			return fmt.Errorf("update material request item: %w", err)
		}
	}
	return nil
}

// UpdateSegment persiste el segmento resuelto (y el sitio si se conoce).
func (r *RequestRepo) UpdateSegment(ctx context.Context, id string, segmentID int64, site string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE material_requests SET segment_id = $2, site = CASE WHEN $3 = '' THEN site ELSE $3 END WHERE id = $1`,
		id, segmentID, site,
	)
	if err != nil {
		return fmt.Errorf("update request segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List devuelve las solicitudes que cumplen f, más recientes primero, con sus ítems.
func (r *RequestRepo) List(ctx context.Context, f repository.RequestFilter) ([]*entity.Request, error) {
	where, args := buildRequestFilter(f)
	query := `SELECT ` + requestColumns + ` FROM material_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list material requests: %w", err)
	}
	var list []*entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan material request: %w", err)
		}
		list = append(list, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list material requests: %w", err)
	}
	if err := r.loadItems(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// buildRequestFilter arma las condiciones WHERE con placeholders numerados.
func buildRequestFilter(f repository.RequestFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(f.Statuses)+")")
	}
	if f.SegmentUnresolved {
		where = append(where, "segment_id IS NULL")
	} else if len(f.SegmentIDs) > 0 {
		where = append(where, "segment_id = ANY("+arg(f.SegmentIDs)+")")
	}
	if f.RequesterID != nil {
		where = append(where, "requester_id = "+arg(*f.RequesterID))
	}
	if f.From != nil {
		where = append(where, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "created_at < "+arg(*f.To))
	}
	if f.WithPendingItems {
		where = append(where, "EXISTS (SELECT 1 FROM material_request_items i WHERE i.request_id = material_requests.id AND i.status = 'PENDING')")
	}
	return where, args
}

// loadItems carga los ítems de todas las solicitudes en una sola consulta, con los datos del material.
func (r *RequestRepo) loadItems(ctx context.Context, reqs []*entity.Request) error {
	if len(reqs) == 0 {
		return nil
	}
	byID := make(map[string]*entity.Request, len(reqs))
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		req.Items = nil
		byID[req.ID] = req
		ids = append(ids, req.ID)
	}

	query := `
		SELECT i.id, i.request_id, i.material_id, i.quantity, i.status, i.rejection_reason, i.approved_cost, i.decided_at,
		       m.code, m.description, m.unit_measure
		FROM material_request_items i
		JOIN materials m ON m.id = i.material_id
		WHERE i.request_id::text = ANY($1)
		ORDER BY i.request_id, i.position`
	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("list material request items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it entity.Item
		if err := rows.Scan(
			&it.ID, &it.RequestID, &it.MaterialID, &it.Quantity, &it.Status, &it.RejectionReason, &it.ApprovedCost, &it.DecidedAt,
			&it.MaterialCode, &it.MaterialDescription, &it.MaterialUnit,
		); err != nil {
			return fmt.Errorf("scan material request item: %w", err)
		}
		if req, ok := byID[it.RequestID]; ok {
			req.Items = append(req.Items, it)
		}
	}
	return rows.Err()
}

func scanRequest(row pgx.Row) (*entity.Request, error) {
	var req entity.Request
	err := row.Scan(
		&req.ID, &req.CreatedAt, &req.UpdatedAt, &req.Justification, &req.Status, &req.RequesterID,
		&req.WorkOrderID, &req.LineItemID, &req.SegmentID, &req.Site, &req.ApproverID,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
