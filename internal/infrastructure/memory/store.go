// Package memory implementa los repositorios sobre mapas en memoria, con transacciones
// por copia de estado (commit reemplaza el estado, rollback lo descarta).
// Se usa en pruebas y con STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
)

type state struct {
	materials map[string]entity.Material
	entries   []entity.MaterialEntry
	requests  map[string]entity.Request
	itemIndex map[string]string // itemID -> requestID
}

func newState() *state {
	return &state{
		materials: map[string]entity.Material{},
		requests:  map[string]entity.Request{},
		itemIndex: map[string]string{},
	}
}

func (s *state) clone() *state {
	c := &state{
		materials: make(map[string]entity.Material, len(s.materials)),
		entries:   append([]entity.MaterialEntry(nil), s.entries...),
		requests:  make(map[string]entity.Request, len(s.requests)),
		itemIndex: make(map[string]string, len(s.itemIndex)),
	}
	for k, v := range s.materials {
		c.materials[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = copyRequest(v)
	}
	for k, v := range s.itemIndex {
		c.itemIndex[k] = v
	}
	return c
}

func copyRequest(r entity.Request) entity.Request {
	r.Items = append([]entity.Item(nil), r.Items...)
	return r
}

// Store contiene el estado compartido. Las transacciones se serializan con mu, equivalente
// a bloquear todas las filas que tocan.
type Store struct {
	mu   sync.Mutex
	data *state
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{data: newState()}
}

// Materials devuelve el repositorio de materiales fuera de transacción.
func (s *Store) Materials() *MaterialRepo { return &MaterialRepo{s: s} }

// Entries devuelve el repositorio de entradas fuera de transacción.
func (s *Store) Entries() *EntryRepo { return &EntryRepo{s: s} }

// Requests devuelve el repositorio de solicitudes fuera de transacción.
func (s *Store) Requests() *RequestRepo { return &RequestRepo{s: s} }

// TxRunner ejecuta callbacks sobre una copia del estado; sólo se publica si fn no falla.
type TxRunner struct {
	s *Store
}

// NewTxRunner construye el runner sobre el store.
func NewTxRunner(s *Store) *TxRunner {
	return &TxRunner{s: s}
}

// Run toma el lock del store, ejecuta fn con repos atados a la copia y hace commit o rollback.
func (r *TxRunner) Run(ctx context.Context, fn func(
	materials repository.MaterialRepository,
	entries repository.MaterialEntryRepository,
	requests repository.RequestRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	work := r.s.data.clone()
	if err := fn(&MaterialRepo{s: r.s, tx: work}, &EntryRepo{s: r.s, tx: work}, &RequestRepo{s: r.s, tx: work}); err != nil {
		return err
	}
	r.s.data = work
	return nil
}

// view ejecuta fn sobre el estado de la tx o, fuera de ella, sobre el estado publicado con lock.
func (s *Store) view(tx *state, fn func(st *state) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}
