package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var (
	_ repository.MaterialRepository      = (*MaterialRepo)(nil)
	_ repository.MaterialEntryRepository = (*EntryRepo)(nil)
)

// MaterialRepo materiales en memoria.
type MaterialRepo struct {
	s  *Store
	tx *state
}

func (r *MaterialRepo) Create(_ context.Context, m *entity.Material) error {
	return r.s.view(r.tx, func(st *state) error {
		if _, ok := st.materials[m.ID]; ok {
			return domain.ErrDuplicate
		}
		for _, other := range st.materials {
			if other.Code == m.Code {
				return domain.ErrDuplicate
			}
		}
		st.materials[m.ID] = *m
		return nil
	})
}

func (r *MaterialRepo) GetByID(_ context.Context, id string) (*entity.Material, error) {
	var out *entity.Material
	err := r.s.view(r.tx, func(st *state) error {
		if m, ok := st.materials[id]; ok {
			out = &m
		}
		return nil
	})
	return out, err
}

// GetForUpdate no necesita bloqueo adicional: la tx ya tiene el lock del store.
func (r *MaterialRepo) GetForUpdate(ctx context.Context, id string) (*entity.Material, error) {
	return r.GetByID(ctx, id)
}

func (r *MaterialRepo) GetByCode(_ context.Context, code string) (*entity.Material, error) {
	var out *entity.Material
	err := r.s.view(r.tx, func(st *state) error {
		for _, m := range st.materials {
			if m.Code == code {
				found := m
				out = &found
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *MaterialRepo) Update(_ context.Context, m *entity.Material) error {
	return r.s.view(r.tx, func(st *state) error {
		cur, ok := st.materials[m.ID]
		if !ok {
			return domain.ErrNotFound
		}
		for id, other := range st.materials {
			if id != m.ID && other.Code == m.Code {
				return domain.ErrDuplicate
			}
		}
		cur.Code, cur.Description, cur.Model = m.Code, m.Description, m.Model
		cur.SerialNumber, cur.Notes, cur.UpdatedAt = m.SerialNumber, m.Notes, m.UpdatedAt
		st.materials[m.ID] = cur
		return nil
	})
}

func (r *MaterialRepo) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	return r.s.view(r.tx, func(st *state) error {
		m, ok := st.materials[id]
		if !ok {
			return domain.ErrNotFound
		}
		m.Balance = balance
		st.materials[id] = m
		return nil
	})
}

func (r *MaterialRepo) UpdateBalanceAndCost(_ context.Context, id string, balance, avgCost decimal.Decimal) error {
	return r.s.view(r.tx, func(st *state) error {
		m, ok := st.materials[id]
		if !ok {
			return domain.ErrNotFound
		}
		m.Balance = balance
		m.AvgCost = &avgCost
		st.materials[id] = m
		return nil
	})
}

// List ordena por código, como el listado de Postgres.
func (r *MaterialRepo) List(_ context.Context, search string, limit, offset int) ([]*entity.Material, error) {
	var out []*entity.Material
	needle := strings.ToLower(search)
	err := r.s.view(r.tx, func(st *state) error {
		for _, m := range st.materials {
			if needle != "" && !strings.Contains(strings.ToLower(m.Code), needle) &&
				!strings.Contains(strings.ToLower(m.Description), needle) {
				continue
			}
			found := m
			out = append(out, &found)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return page(out, limit, offset), err
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

// EntryRepo entradas de stock en memoria.
type EntryRepo struct {
	s  *Store
	tx *state
}

func (r *EntryRepo) Create(_ context.Context, e *entity.MaterialEntry) error {
	return r.s.view(r.tx, func(st *state) error {
		if _, ok := st.materials[e.MaterialID]; !ok {
			return domain.ErrNotFound
		}
		st.entries = append(st.entries, *e)
		return nil
	})
}

// ListByMaterial devuelve las entradas más recientes primero.
func (r *EntryRepo) ListByMaterial(_ context.Context, materialID string, limit int) ([]*entity.MaterialEntry, error) {
	var out []*entity.MaterialEntry
	err := r.s.view(r.tx, func(st *state) error {
		for i := len(st.entries) - 1; i >= 0; i-- {
			if st.entries[i].MaterialID == materialID {
				e := st.entries[i]
				out = append(out, &e)
			}
		}
		return nil
	})
	return page(out, limit, 0), err
}
