package dto

// Ventana de los listados de materiales.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// PageRequest ?limit=&offset= de un listado. La validación rechaza limit > MaxLimit.
type PageRequest struct {
	Limit  int `query:"limit" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// Normalize completa un limit ausente con DefaultLimit y lleva un offset negativo a 0.
func (p *PageRequest) Normalize() {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	p.Offset = max(p.Offset, 0)
}

// PageResponse ventana efectivamente aplicada.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorResponse cuerpo de toda respuesta de error: code es estable (VALIDATION, NOT_FOUND, ...),
// message es texto libre.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
