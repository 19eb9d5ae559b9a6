package inventory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/inventory"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// Ledger es el único dueño del saldo y del costo promedio de los materiales.
// Sus métodos no abren transacción: reciben los repositorios de la tx del caller y
// bloquean la fila del material (GetForUpdate) antes de mutarla.
type Ledger struct {
	now func() time.Time
}

// NewLedger construye el ledger con reloj real.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// EntryInput datos de una entrada de stock.
type EntryInput struct {
	MaterialID string
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	Notes      string
	UserID     int64
}

// RecordEntry suma la cantidad al saldo, recalcula el costo promedio ponderado y guarda la entrada.
func (l *Ledger) RecordEntry(
	ctx context.Context,
	materials repository.MaterialRepository,
	entries repository.MaterialEntryRepository,
	in EntryInput,
) (*entity.Material, *entity.MaterialEntry, error) {
	if !in.Quantity.IsPositive() || in.UnitCost.IsNegative() {
		return nil, nil, fmt.Errorf("entrada: cantidad o costo fuera de rango: %w", domain.ErrValidation)
	}
	if err := CheckScale("cantidad", in.Quantity); err != nil {
		return nil, nil, err
	}
	if err := CheckScale("costo unitario", in.UnitCost); err != nil {
		return nil, nil, err
	}
	m, err := l.lock(ctx, materials, in.MaterialID)
	if err != nil {
		return nil, nil, err
	}
	newAvg, err := inventory.CostCalculator(m.Balance, m.AvgCost, in.Quantity, in.UnitCost)
	if err != nil {
		return nil, nil, fmt.Errorf("entrada material %s: el nuevo saldo no puede ser cero: %w", m.Code, err)
	}
	newBalance := m.Balance.Add(in.Quantity)
	if err := materials.UpdateBalanceAndCost(ctx, m.ID, newBalance, newAvg); err != nil {
		return nil, nil, err
	}
	now := l.now()
	m.Balance, m.AvgCost, m.UpdatedAt = newBalance, &newAvg, now

	entry := &entity.MaterialEntry{
		ID:         uuid.New().String(),
		MaterialID: m.ID,
		Quantity:   in.Quantity,
		UnitCost:   in.UnitCost,
		Notes:      in.Notes,
		CreatedBy:  in.UserID,
		CreatedAt:  now,
	}
	if err := entries.Create(ctx, entry); err != nil {
		return nil, nil, err
	}
	return m, entry, nil
}

// Reserve descuenta quantity del saldo al crear una solicitud. Política estricta:
// si el saldo no alcanza devuelve ErrInsufficientStock y el saldo nunca queda negativo.
func (l *Ledger) Reserve(ctx context.Context, materials repository.MaterialRepository, materialID string, quantity decimal.Decimal) (*entity.Material, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("reserva: cantidad debe ser positiva: %w", domain.ErrValidation)
	}
	if err := CheckScale("cantidad", quantity); err != nil {
		return nil, err
	}
	m, err := l.lock(ctx, materials, materialID)
	if err != nil {
		return nil, err
	}
	if m.Balance.LessThan(quantity) {
		return nil, fmt.Errorf("material %s: saldo %s, solicitado %s: %w", m.Code, m.Balance, quantity, domain.ErrInsufficientStock)
	}
	m.Balance = m.Balance.Sub(quantity)
	m.UpdatedAt = l.now()
	if err := materials.UpdateBalance(ctx, m.ID, m.Balance); err != nil {
		return nil, err
	}
	return m, nil
}

// Release devuelve quantity al saldo. Se llama exactamente una vez por ítem rechazado.
func (l *Ledger) Release(ctx context.Context, materials repository.MaterialRepository, materialID string, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("liberación: cantidad debe ser positiva: %w", domain.ErrValidation)
	}
	if err := CheckScale("cantidad", quantity); err != nil {
		return err
	}
	m, err := l.lock(ctx, materials, materialID)
	if err != nil {
		return err
	}
	return materials.UpdateBalance(ctx, m.ID, m.Balance.Add(quantity))
}

// LockAll bloquea las filas de los materiales en orden ascendente de id.
// Toda tx que toque varios materiales debe llamarlo antes de mutar ninguno,
// así dos tx con los mismos materiales nunca esperan una por la otra en ciclo.
func (l *Ledger) LockAll(ctx context.Context, materials repository.MaterialRepository, ids []string) error {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for _, id := range slices.Compact(sorted) {
		if _, err := l.lock(ctx, materials, id); err != nil {
			return err
		}
	}
	return nil
}

// CheckScale devuelve ErrValidation si v tiene más decimales de los que admite la columna.
func CheckScale(field string, v decimal.Decimal) error {
	if !inventory.FitsPrecision(v) {
		return fmt.Errorf("%s %s: máximo %d decimales: %w", field, v, inventory.CostPrecision, domain.ErrValidation)
	}
	return nil
}

func (l *Ledger) lock(ctx context.Context, materials repository.MaterialRepository, id string) (*entity.Material, error) {
	m, err := materials.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("material %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}
