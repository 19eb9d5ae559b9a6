package entity

import (
	"fmt"
	"strings"
)

// Role es el rol del usuario que actúa. Se decide una sola vez en el borde (token JWT);
// la lógica interna nunca vuelve a interpretar texto libre.
type Role string

// Roles válidos.
const (
	RoleFirstLine  Role = "FIRST_LINE"  // coordinador del segmento
	RoleSecondLine Role = "SECOND_LINE" // controller / financiero
	RoleAdmin      Role = "ADMIN"
	RoleRequester  Role = "REQUESTER"
)

// roleAliases mapea los nombres de rol que emite el sistema externo al enum interno.
var roleAliases = map[string]Role{
	"FIRST_LINE":  RoleFirstLine,
	"COORDINATOR": RoleFirstLine,
	"MANAGER":     RoleFirstLine,
	"SECOND_LINE": RoleSecondLine,
	"CONTROLLER":  RoleSecondLine,
	"ADMIN":       RoleAdmin,
	"REQUESTER":   RoleRequester,
	"USER":        RoleRequester,
}

// ParseRole convierte el claim de rol en el enum. Rol vacío o desconocido devuelve error.
func ParseRole(s string) (Role, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if key == "" {
		return "", fmt.Errorf("rol ausente")
	}
	r, ok := roleAliases[key]
	if !ok {
		return "", fmt.Errorf("rol desconocido %q", s)
	}
	return r, nil
}

// Stage devuelve la etapa que revisa el rol para una solicitud en el estado indicado.
// ADMIN actúa como el revisor de la etapa actual. ok=false si el rol no puede decidir en ese estado.
func (r Role) Stage(requestStatus string) (Role, bool) {
	switch r {
	case RoleFirstLine:
		return RoleFirstLine, requestStatus == RequestPendingStage1
	case RoleSecondLine:
		return RoleSecondLine, requestStatus == RequestPendingStage2
	case RoleAdmin:
		switch requestStatus {
		case RequestPendingStage1:
			return RoleFirstLine, true
		case RequestPendingStage2:
			return RoleSecondLine, true
		}
	}
	return "", false
}

// CanDecide indica si el rol participa del flujo de aprobación.
func (r Role) CanDecide() bool {
	return r == RoleFirstLine || r == RoleSecondLine || r == RoleAdmin
}

// Action es la decisión sobre un ítem.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// ParseAction valida el token de acción.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", fmt.Errorf("acción inválida %q", s)
}

// Actor es el usuario autenticado que ejecuta una acción.
type Actor struct {
	UserID int64
	Role   Role
}

// Segment es una partición organizacional del sistema externo.
type Segment struct {
	ID   int64
	Name string
}
