package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/materiales-api/internal/application/dto"
	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// InitialEntryNote es la observación de la entrada creada al dar de alta un material.
const InitialEntryNote = "Entrada inicial de stock"

// MaterialUseCase casos de uso del catálogo de materiales. Saldo y costo se manejan vía Ledger.
type MaterialUseCase struct {
	txRunner TxRunner
	ledger   *Ledger
	repo     repository.MaterialRepository
	entries  repository.MaterialEntryRepository
}

// NewMaterialUseCase construye el caso de uso. repo y entries son de lectura (pool).
func NewMaterialUseCase(txRunner TxRunner, ledger *Ledger, repo repository.MaterialRepository, entries repository.MaterialEntryRepository) *MaterialUseCase {
	return &MaterialUseCase{txRunner: txRunner, ledger: ledger, repo: repo, entries: entries}
}

// Create da de alta un material. Con saldo inicial registra la primera entrada en la misma tx;
// el costo promedio inicial es el costo unitario informado (nil si no se informa).
func (uc *MaterialUseCase) Create(ctx context.Context, userID int64, in dto.CreateMaterialRequest) (*dto.MaterialResponse, error) {
	if in.InitialBalance.IsNegative() || (in.InitialUnitCost != nil && in.InitialUnitCost.IsNegative()) {
		return nil, fmt.Errorf("saldo o costo inicial negativo: %w", domain.ErrValidation)
	}
	if err := CheckScale("saldo inicial", in.InitialBalance); err != nil {
		return nil, err
	}
	if in.InitialUnitCost != nil {
		if err := CheckScale("costo inicial", *in.InitialUnitCost); err != nil {
			return nil, err
		}
	}
	code := strings.TrimSpace(in.Code)
	now := time.Now()
	m := &entity.Material{
		ID:           uuid.New().String(),
		Code:         code,
		Description:  in.Description,
		Model:        in.Model,
		SerialNumber: in.SerialNumber,
		UnitMeasure:  in.UnitMeasure,
		Balance:      decimal.Zero,
		Company:      in.Company,
		Notes:        in.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var entry *entity.MaterialEntry
	err := uc.txRunner.Run(ctx, func(
		materials repository.MaterialRepository,
		entries repository.MaterialEntryRepository,
		_ repository.RequestRepository,
	) error {
		existing, err := materials.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("código %q ya está en uso: %w", code, domain.ErrDuplicate)
		}
		if err := materials.Create(ctx, m); err != nil {
			return err
		}
		if !in.InitialBalance.IsPositive() {
			if in.InitialUnitCost == nil {
				return nil
			}
			m.AvgCost = in.InitialUnitCost
			return materials.UpdateBalanceAndCost(ctx, m.ID, m.Balance, *m.AvgCost)
		}
		if in.InitialUnitCost == nil {
			// Sin costo informado el saldo entra pero el promedio queda sin definir.
			m.Balance = in.InitialBalance
			return materials.UpdateBalance(ctx, m.ID, m.Balance)
		}
		updated, e, err := uc.ledger.RecordEntry(ctx, materials, entries, EntryInput{
			MaterialID: m.ID,
			Quantity:   in.InitialBalance,
			UnitCost:   *in.InitialUnitCost,
			Notes:      InitialEntryNote,
			UserID:     userID,
		})
		if err != nil {
			return err
		}
		m, entry = updated, e
		return nil
	})
	if err != nil {
		return nil, err
	}
	res := toMaterialResponse(m)
	if entry != nil {
		res.Entries = []dto.EntryResponse{toEntryResponse(entry)}
	}
	return res, nil
}

// GetByID obtiene un material con sus últimas entradas. Devuelve (nil, nil) si no existe.
func (uc *MaterialUseCase) GetByID(ctx context.Context, id string) (*dto.MaterialResponse, error) {
	m, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	list, err := uc.entries.ListByMaterial(ctx, id, 50)
	if err != nil {
		return nil, err
	}
	res := toMaterialResponse(m)
	for _, e := range list {
		res.Entries = append(res.Entries, toEntryResponse(e))
	}
	return res, nil
}

// Update modifica los datos descriptivos. Devuelve (nil, nil) si no existe.
func (uc *MaterialUseCase) Update(ctx context.Context, id string, in dto.UpdateMaterialRequest) (*dto.MaterialResponse, error) {
	var out *entity.Material
	err := uc.txRunner.Run(ctx, func(
		materials repository.MaterialRepository,
		_ repository.MaterialEntryRepository,
		_ repository.RequestRepository,
	) error {
		m, err := materials.GetForUpdate(ctx, id)
		if err != nil || m == nil {
			return err
		}
		if in.Code != nil {
			code := strings.TrimSpace(*in.Code)
			if code != m.Code {
				existing, err := materials.GetByCode(ctx, code)
				if err != nil {
					return err
				}
				if existing != nil && existing.ID != m.ID {
					return fmt.Errorf("código %q ya está en uso: %w", code, domain.ErrDuplicate)
				}
				m.Code = code
			}
		}
		if in.Description != nil {
			m.Description = *in.Description
		}
		if in.Model != nil {
			m.Model = *in.Model
		}
		if in.SerialNumber != nil {
			m.SerialNumber = *in.SerialNumber
		}
		if in.Notes != nil {
			m.Notes = *in.Notes
		}
		m.UpdatedAt = time.Now()
		if err := materials.Update(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil || out == nil {
		return nil, err
	}
	return toMaterialResponse(out), nil
}

// List lista materiales con búsqueda opcional por código o descripción.
func (uc *MaterialUseCase) List(ctx context.Context, search string, page dto.PageRequest) (*dto.MaterialListResponse, error) {
	page.Normalize()
	list, err := uc.repo.List(ctx, strings.TrimSpace(search), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	items := make([]dto.MaterialResponse, 0, len(list))
	for _, m := range list {
		items = append(items, *toMaterialResponse(m))
	}
	return &dto.MaterialListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}, nil
}

// RecordEntry abre la transacción y registra una entrada de stock.
func (uc *MaterialUseCase) RecordEntry(ctx context.Context, userID int64, in dto.RecordEntryRequest) (*dto.MaterialResponse, error) {
	var (
		m     *entity.Material
		entry *entity.MaterialEntry
	)
	err := uc.txRunner.Run(ctx, func(
		materials repository.MaterialRepository,
		entries repository.MaterialEntryRepository,
		_ repository.RequestRepository,
	) error {
		var err error
		m, entry, err = uc.ledger.RecordEntry(ctx, materials, entries, EntryInput{
			MaterialID: in.MaterialID,
			Quantity:   in.Quantity,
			UnitCost:   in.UnitCost,
			Notes:      in.Notes,
			UserID:     userID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	res := toMaterialResponse(m)
	res.Entries = []dto.EntryResponse{toEntryResponse(entry)}
	return res, nil
}

func toMaterialResponse(m *entity.Material) *dto.MaterialResponse {
	return &dto.MaterialResponse{
		ID:           m.ID,
		Code:         m.Code,
		Description:  m.Description,
		Model:        m.Model,
		SerialNumber: m.SerialNumber,
		UnitMeasure:  m.UnitMeasure,
		Balance:      m.Balance,
		AvgCost:      m.AvgCost,
		Company:      m.Company,
		Notes:        m.Notes,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toEntryResponse(e *entity.MaterialEntry) dto.EntryResponse {
	return dto.EntryResponse{
		ID:         e.ID,
		MaterialID: e.MaterialID,
		Quantity:   e.Quantity,
		UnitCost:   e.UnitCost,
		Notes:      e.Notes,
		CreatedBy:  e.CreatedBy,
		CreatedAt:  e.CreatedAt,
	}
}
