package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrValidation        = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrInvalidState      = errors.New("estado inválido para la operación")
	ErrStageMismatch     = errors.New("la solicitud no está en la etapa del revisor")
	ErrInsufficientStock = errors.New("stock insuficiente")

	// ErrIntegration marca fallos del sistema externo. Nunca se devuelve al cliente:
	// sólo se registra y el flujo continúa con datos degradados.
	ErrIntegration = errors.New("fallo de integración externa")
)
