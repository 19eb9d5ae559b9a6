package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
)

var _ repository.RequestRepository = (*RequestRepo)(nil)

// RequestRepo solicitudes en memoria; los ítems viven dentro de la solicitud.
type RequestRepo struct {
	s  *Store
	tx *state
}

func (r *RequestRepo) Create(_ context.Context, req *entity.Request) error {
	return r.s.view(r.tx, func(st *state) error {
		if _, ok := st.requests[req.ID]; ok {
			return domain.ErrDuplicate
		}
		for _, it := range req.Items {
			if _, ok := st.materials[it.MaterialID]; !ok {
				return domain.ErrNotFound
			}
		}
		st.requests[req.ID] = copyRequest(*req)
		for _, it := range req.Items {
			st.itemIndex[it.ID] = req.ID
		}
		return nil
	})
}

func (r *RequestRepo) GetByID(_ context.Context, id string) (*entity.Request, error) {
	var out *entity.Request
	err := r.s.view(r.tx, func(st *state) error {
		out = st.load(id)
		return nil
	})
	return out, err
}

func (r *RequestRepo) GetForUpdate(ctx context.Context, id string) (*entity.Request, error) {
	return r.GetByID(ctx, id)
}

func (r *RequestRepo) FindRequestIDsByItems(_ context.Context, itemIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(itemIDs))
	err := r.s.view(r.tx, func(st *state) error {
		for _, id := range itemIDs {
			if reqID, ok := st.itemIndex[id]; ok {
				out[id] = reqID
			}
		}
		return nil
	})
	return out, err
}

func (r *RequestRepo) Save(_ context.Context, req *entity.Request) error {
	return r.s.view(r.tx, func(st *state) error {
		cur, ok := st.requests[req.ID]
		if !ok {
			return domain.ErrNotFound
		}
		cur.Status = req.Status
		cur.ApproverID = req.ApproverID
		cur.UpdatedAt = req.UpdatedAt
		for _, it := range req.Items {
			for i := range cur.Items {
				if cur.Items[i].ID == it.ID {
					cur.Items[i].Status = it.Status
					cur.Items[i].RejectionReason = it.RejectionReason
					cur.Items[i].ApprovedCost = it.ApprovedCost
					cur.Items[i].DecidedAt = it.DecidedAt
				}
			}
		}
		st.requests[req.ID] = cur
		return nil
	})
}

func (r *RequestRepo) UpdateSegment(_ context.Context, id string, segmentID int64, site string) error {
	return r.s.view(r.tx, func(st *state) error {
		cur, ok := st.requests[id]
		if !ok {
			return domain.ErrNotFound
		}
		cur.SegmentID = &segmentID
		if site != "" {
			cur.Site = site
		}
		st.requests[id] = cur
		return nil
	})
}

func (r *RequestRepo) List(_ context.Context, f repository.RequestFilter) ([]*entity.Request, error) {
	var out []*entity.Request
	err := r.s.view(r.tx, func(st *state) error {
		for id, req := range st.requests {
			if !matches(&req, f) {
				continue
			}
			out = append(out, st.load(id))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, f.Limit, 0), err
}

func matches(req *entity.Request, f repository.RequestFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, req.Status) {
		return false
	}
	if f.SegmentUnresolved {
		if req.SegmentID != nil {
			return false
		}
	} else if len(f.SegmentIDs) > 0 && (req.SegmentID == nil || !slices.Contains(f.SegmentIDs, *req.SegmentID)) {
		return false
	}
	if f.RequesterID != nil && req.RequesterID != *f.RequesterID {
		return false
	}
	if f.From != nil && req.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !req.CreatedAt.Before(*f.To) {
		return false
	}
	if f.WithPendingItems && !req.HasPendingItems() {
		return false
	}
	return true
}

// load copia la solicitud y completa los datos de material de cada ítem.
func (st *state) load(id string) *entity.Request {
	req, ok := st.requests[id]
	if !ok {
		return nil
	}
	out := copyRequest(req)
	for i := range out.Items {
		if m, ok := st.materials[out.Items[i].MaterialID]; ok {
			out.Items[i].MaterialCode = m.Code
			out.Items[i].MaterialDescription = m.Description
			out.Items[i].MaterialUnit = m.UnitMeasure
		}
	}
	return &out
}
