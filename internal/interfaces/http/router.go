package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jhoicas/materiales-api/internal/application/approval"
	"github.com/jhoicas/materiales-api/internal/application/inventory"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/jhoicas/materiales-api/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AppName    string
	MaterialUC *inventory.MaterialUseCase
	Workflow   *approval.Workflow
	JWTSecret  string
	Log        *logger.Logger
	Gatherer   prometheus.Gatherer // nil = sin /metrics
}

var (
	allRoles      = []entity.Role{entity.RoleRequester, entity.RoleFirstLine, entity.RoleSecondLine, entity.RoleAdmin}
	reviewerRoles = []entity.Role{entity.RoleFirstLine, entity.RoleSecondLine, entity.RoleAdmin}
	stockRoles    = []entity.Role{entity.RoleSecondLine, entity.RoleAdmin}
)

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.AppName})
	})
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Rutas protegidas (requieren Bearer Token)
	protected := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	// Materials: la lectura es para todos; alta, cambios y entradas para almacén/administración
	materials := protected.Group("/materials")
	materialHandler := NewMaterialHandler(deps.MaterialUC, deps.Log)
	materials.Get("/", RequireRole(allRoles...), materialHandler.List)
	materials.Post("/", RequireRole(stockRoles...), materialHandler.Create)
	materials.Post("/entries", RequireRole(stockRoles...), materialHandler.RecordEntry)
	materials.Get("/:id", RequireRole(allRoles...), materialHandler.GetByID)
	materials.Put("/:id", RequireRole(stockRoles...), materialHandler.Update)

	// Material requests
	requests := protected.Group("/material-requests")
	requestHandler := NewRequestHandler(deps.Workflow, deps.Log)
	requests.Post("/batch", RequireRole(allRoles...), requestHandler.Create)
	requests.Get("/pending", RequireRole(allRoles...), requestHandler.Pending)
	requests.Get("/history", RequireRole(allRoles...), requestHandler.History)
	requests.Post("/decisions", RequireRole(reviewerRoles...), requestHandler.DecideBatch)
	requests.Get("/:id", RequireRole(allRoles...), requestHandler.GetByID)
	requests.Post("/:id/items/:itemId/decision", RequireRole(reviewerRoles...), requestHandler.Decide)
}
