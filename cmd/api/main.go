package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/materiales-api/internal/application/approval"
	"github.com/jhoicas/materiales-api/internal/application/inventory"
	"github.com/jhoicas/materiales-api/internal/domain/repository"
	"github.com/jhoicas/materiales-api/internal/infrastructure/gateway"
	"github.com/jhoicas/materiales-api/internal/infrastructure/memory"
	"github.com/jhoicas/materiales-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/materiales-api/internal/interfaces/http"
	"github.com/jhoicas/materiales-api/pkg/config"
	"github.com/jhoicas/materiales-api/pkg/logger"
	"github.com/jhoicas/materiales-api/pkg/metrics"
	"github.com/jhoicas/materiales-api/pkg/migrate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// storage repositorios y runner según STORAGE_DRIVER.
type storage struct {
	tx        inventory.TxRunner
	materials repository.MaterialRepository
	entries   repository.MaterialEntryRepository
	requests  repository.RequestRepository
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.Log.Level,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("storage", cfg.App.StorageDriver).
		Msg("iniciando aplicación")

	ctx := context.Background()
	store := openStorage(ctx, cfg, log)
	defer store.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := gateway.NewClient(cfg.Gateway, log, m)
	var dir approval.Directory = gateway.NewDirectory(client)
	if cfg.Redis.URL != "" {
		rs, err := gateway.NewRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn().Err(err).Msg("redis no disponible, caché del sistema externo desactivada")
		} else {
			defer rs.Close()
			dir = gateway.NewCachedDirectory(dir, rs, cfg.Redis.TTL, log)
		}
	}
	log.Info().Strs("base_urls", client.Bases()).Msg("sistema externo configurado")

	ledger := inventory.NewLedger()
	materialUC := inventory.NewMaterialUseCase(store.tx, ledger, store.materials, store.entries)
	workflow := approval.NewWorkflow(store.tx, ledger, store.requests, dir, m, log, approval.Config{
		HistoryLimit:       cfg.Workflow.HistoryLimit,
		PendingLimit:       cfg.Workflow.PendingLimit,
		HistoryDefaultDays: cfg.Workflow.HistoryDefaultDays,
		EnrichConcurrency:  cfg.Workflow.EnrichConcurrency,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		AppName:    cfg.App.Name,
		MaterialUC: materialUC,
		Workflow:   workflow,
		JWTSecret:  cfg.JWT.Secret,
		Log:        log,
		Gatherer:   reg,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) storage {
	if cfg.App.StorageDriver == "memory" {
		log.Warn().Msg("STORAGE_DRIVER=memory: los datos se pierden al reiniciar")
		s := memory.NewStore()
		return storage{
			tx:        memory.NewTxRunner(s),
			materials: s.Materials(),
			entries:   s.Entries(),
			requests:  s.Requests(),
			close:     func() {},
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	if cfg.App.AutoMigrate {
		if err := migrate.Up(ctx, pool); err != nil {
			pool.Close()
			log.Fatal().Err(err).Msg("migraciones")
		}
		log.Info().Msg("migraciones aplicadas")
	}
	return storage{
		tx:        postgres.NewTxRunner(pool),
		materials: postgres.NewMaterialRepository(pool),
		entries:   postgres.NewMaterialEntryRepository(pool),
		requests:  postgres.NewRequestRepository(pool),
		close:     pool.Close,
	}
}
