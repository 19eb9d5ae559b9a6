package repository

import (
	"context"

	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// MaterialRepository define el puerto de persistencia para Material (DIP).
// GetByID y GetByCode devuelven (nil, nil) si no existe.
type MaterialRepository interface {
	Create(ctx context.Context, m *entity.Material) error
	GetByID(ctx context.Context, id string) (*entity.Material, error)
	GetByCode(ctx context.Context, code string) (*entity.Material, error)
	// GetForUpdate bloquea la fila del material (SELECT FOR UPDATE) dentro de la tx.
	GetForUpdate(ctx context.Context, id string) (*entity.Material, error)
	// Update persiste los datos descriptivos; no toca saldo ni costo.
	Update(ctx context.Context, m *entity.Material) error
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
	UpdateBalanceAndCost(ctx context.Context, id string, balance, avgCost decimal.Decimal) error
	List(ctx context.Context, search string, limit, offset int) ([]*entity.Material, error)
}

// MaterialEntryRepository persiste las entradas de stock.
type MaterialEntryRepository interface {
	Create(ctx context.Context, e *entity.MaterialEntry) error
	ListByMaterial(ctx context.Context, materialID string, limit int) ([]*entity.MaterialEntry, error)
}
