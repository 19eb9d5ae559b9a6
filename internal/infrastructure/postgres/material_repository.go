package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var (
	_ repository.MaterialRepository      = (*MaterialRepo)(nil)
	_ repository.MaterialEntryRepository = (*MaterialEntryRepo)(nil)
)

const materialColumns = `id, code, description, model, serial_number, unit_measure, balance, avg_cost, company, notes, created_at, updated_at`

// MaterialRepo implementación de MaterialRepository sobre PostgreSQL (usable con pool o tx).
type MaterialRepo struct {
	q Querier
}

// NewMaterialRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMaterialRepository(q Querier) *MaterialRepo {
	return &MaterialRepo{q: q}
}

// Create persiste un material nuevo.
func (r *MaterialRepo) Create(ctx context.Context, m *entity.Material) error {
	query := `
		INSERT INTO materials (` + materialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.Code, m.Description, m.Model, m.SerialNumber, m.UnitMeasure,
		m.Balance, m.AvgCost, m.Company, m.Notes, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("material %q: %w", m.Code, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert material: %w", err)
	}
	return nil
}

// GetByID obtiene un material por ID.
func (r *MaterialRepo) GetByID(ctx context.Context, id string) (*entity.Material, error) {
	return r.getOne(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id)
}

// GetByCode obtiene un material por código.
func (r *MaterialRepo) GetByCode(ctx context.Context, code string) (*entity.Material, error) {
	return r.getOne(ctx, `SELECT `+materialColumns+` FROM materials WHERE code = $1`, code)
}

// GetForUpdate obtiene el material y bloquea la fila hasta el fin de la tx.
func (r *MaterialRepo) GetForUpdate(ctx context.Context, id string) (*entity.Material, error) {
	return r.getOne(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1 FOR UPDATE`, id)
}

func (r *MaterialRepo) getOne(ctx context.Context, query string, arg any) (*entity.Material, error) {
	m, err := scanMaterial(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get material: %w", err)
	}
	return m, nil
}

// Update persiste los datos descriptivos.
func (r *MaterialRepo) Update(ctx context.Context, m *entity.Material) error {
	query := `
		UPDATE materials
		SET code = $2, description = $3, model = $4, serial_number = $5, notes = $6, updated_at = $7
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, m.ID, m.Code, m.Description, m.Model, m.SerialNumber, m.Notes, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("material %q: %w", m.Code, domain.ErrDuplicate)
		}
		return fmt.Errorf("update material: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateBalance actualiza sólo el saldo.
func (r *MaterialRepo) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	return r.exec(ctx, `UPDATE materials SET balance = $2, updated_at = now() WHERE id = $1`, id, balance)
}

// UpdateBalanceAndCost actualiza saldo y costo promedio.
func (r *MaterialRepo) UpdateBalanceAndCost(ctx context.Context, id string, balance, avgCost decimal.Decimal) error {
	return r.exec(ctx, `UPDATE materials SET balance = $2, avg_cost = $3, updated_at = now() WHERE id = $1`, id, balance, avgCost)
}

func (r *MaterialRepo) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("saldo negativo: %w", domain.ErrInsufficientStock)
		}
		return fmt.Errorf("update material balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List lista materiales ordenados por código; search filtra por código o descripción (ILIKE).
func (r *MaterialRepo) List(ctx context.Context, search string, limit, offset int) ([]*entity.Material, error) {
	query := `
		SELECT ` + materialColumns + `
		FROM materials
		WHERE $1 = '' OR code ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY code
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, escapeLike(search), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	var list []*entity.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func scanMaterial(row pgx.Row) (*entity.Material, error) {
	var m entity.Material
	err := row.Scan(
		&m.ID, &m.Code, &m.Description, &m.Model, &m.SerialNumber, &m.UnitMeasure,
		&m.Balance, &m.AvgCost, &m.Company, &m.Notes, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MaterialEntryRepo entradas de stock sobre PostgreSQL.
type MaterialEntryRepo struct {
	q Querier
}

// NewMaterialEntryRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMaterialEntryRepository(q Querier) *MaterialEntryRepo {
	return &MaterialEntryRepo{q: q}
}

// Create persiste una entrada.
func (r *MaterialEntryRepo) Create(ctx context.Context, e *entity.MaterialEntry) error {
	query := `
		INSERT INTO material_entries (id, material_id, quantity, unit_cost, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.q.Exec(ctx, query, e.ID, e.MaterialID, e.Quantity, e.UnitCost, e.Notes, e.CreatedBy, e.CreatedAt); err != nil {
		return fmt.Errorf("insert material entry: %w", err)
	}
	return nil
}

// ListByMaterial devuelve las últimas entradas del material, más recientes primero.
func (r *MaterialEntryRepo) ListByMaterial(ctx context.Context, materialID string, limit int) ([]*entity.MaterialEntry, error) {
	query := `
		SELECT id, material_id, quantity, unit_cost, notes, created_by, created_at
		FROM material_entries
		WHERE material_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, materialID, limit)
	if err != nil {
		return nil, fmt.Errorf("list material entries: %w", err)
	}
	defer rows.Close()

	var list []*entity.MaterialEntry
	for rows.Next() {
		var e entity.MaterialEntry
		if err := rows.Scan(&e.ID, &e.MaterialID, &e.Quantity, &e.UnitCost, &e.Notes, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan material entry: %w", err)
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
