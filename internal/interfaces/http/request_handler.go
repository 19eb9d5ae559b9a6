package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jhoicas/materiales-api/internal/application/approval"
	"github.com/jhoicas/materiales-api/internal/application/dto"
	"github.com/jhoicas/materiales-api/pkg/logger"
)

// RequestHandler maneja el flujo de aprobación de solicitudes de materiales (protegido).
type RequestHandler struct {
	wf  *approval.Workflow
	log *logger.Logger
}

// NewRequestHandler construye el handler.
func NewRequestHandler(wf *approval.Workflow, log *logger.Logger) *RequestHandler {
	return &RequestHandler{wf: wf, log: log.Component("http.requests")}
}

// Create godoc
// @Summary      Crear solicitud de materiales
// @Description  Reserva el stock de cada ítem; la solicitud queda en PENDING_STAGE_1.
// @Tags         material-requests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateRequestRequest  true  "work_order_id, line_item_id, items"
// @Success      201   {object}  dto.RequestResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/material-requests/batch [post]
func (h *RequestHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateRequestRequest
	if err := parseBody(c, &in); err != nil {
		return writeError(c, h.log, err)
	}
	out, err := h.wf.CreateRequest(c.UserContext(), GetActor(c), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Pending godoc
// @Summary      Solicitudes pendientes para el usuario
// @Tags         material-requests
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.RequestListResponse
// @Router       /api/material-requests/pending [get]
func (h *RequestHandler) Pending(c *fiber.Ctx) error {
	out, err := h.wf.ListPending(c.UserContext(), GetActor(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// History godoc
// @Summary      Historial de solicitudes
// @Tags         material-requests
// @Security     Bearer
// @Produce      json
// @Param        from  query  string  false  "YYYY-MM-DD (inclusive)"
// @Param        to    query  string  false  "YYYY-MM-DD (inclusive)"
// @Success      200   {object}  dto.RequestListResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/material-requests/history [get]
func (h *RequestHandler) History(c *fiber.Ctx) error {
	var q dto.HistoryQuery
	if err := parseQuery(c, &q); err != nil {
		return writeError(c, h.log, err)
	}
	out, err := h.wf.ListHistory(c.UserContext(), GetActor(c), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Detalle de una solicitud
// @Tags         material-requests
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la solicitud"
// @Success      200  {object}  dto.RequestResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/material-requests/{id} [get]
func (h *RequestHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validID(id) {
		return notFound(c, "solicitud no encontrada")
	}
	out, err := h.wf.GetRequest(c.UserContext(), GetActor(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Decide godoc
// @Summary      Decidir un ítem
// @Description  APPROVE o REJECT (reason obligatorio al rechazar). Un ítem ya decidido no cambia.
// @Tags         material-requests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id      path  string               true  "ID de la solicitud"
// @Param        itemId  path  string               true  "ID del ítem"
// @Param        body    body  dto.DecisionRequest  true  "action, reason"
// @Success      200     {object}  dto.RequestResponse
// @Failure      400     {object}  dto.ErrorResponse
// @Failure      403     {object}  dto.ErrorResponse
// @Failure      404     {object}  dto.ErrorResponse
// @Failure      409     {object}  dto.ErrorResponse
// @Router       /api/material-requests/{id}/items/{itemId}/decision [post]
func (h *RequestHandler) Decide(c *fiber.Ctx) error {
	id, itemID := c.Params("id"), c.Params("itemId")
	if !validID(id) || !validID(itemID) {
		return notFound(c, "ítem no encontrado")
	}
	var in dto.DecisionRequest
	if err := parseBody(c, &in); err != nil {
		return writeError(c, h.log, err)
	}
	out, err := h.wf.DecideItem(c.UserContext(), GetActor(c), id, itemID, in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// DecideBatch godoc
// @Summary      Decidir varios ítems
// @Description  Los ítems inexistentes, ya decididos o en otra etapa se informan en skipped.
// @Tags         material-requests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.BatchDecisionRequest  true  "item_ids, action, reason"
// @Success      200   {object}  dto.BatchDecisionResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Router       /api/material-requests/decisions [post]
func (h *RequestHandler) DecideBatch(c *fiber.Ctx) error {
	var in dto.BatchDecisionRequest
	if err := parseBody(c, &in); err != nil {
		return writeError(c, h.log, err)
	}
	res, err := h.wf.DecideBatch(c.UserContext(), GetActor(c), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(approval.ToBatchResponse(res))
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: msg})
}
