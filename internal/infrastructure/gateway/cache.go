package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jhoicas/materiales-api/internal/application/approval"
	"github.com/jhoicas/materiales-api/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyNamespace = "materiales:gw"

var _ approval.Directory = (*CachedDirectory)(nil)

// Store operaciones mínimas de Redis que usa la caché.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisStore adapta *redis.Client a Store.
type RedisStore struct {
	raw *redis.Client
}

// NewRedisStore conecta a Redis con una URL redis:// y verifica la conexión.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{raw: raw}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	return s.raw.Get(ctx, key).Result()
}

func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.raw.Set(ctx, key, value, ttl).Err()
}

// Close cierra la conexión.
func (s *RedisStore) Close() error {
	return s.raw.Close()
}

// CachedDirectory guarda en Redis las consultas de presentación (órdenes de trabajo e ítems contratados)
// por un TTL corto. Las respuestas vacías no se guardan. User y PushMaterialCost van siempre directo:
// los segmentos de un usuario deciden qué solicitudes ve, y un cambio debe valer en la consulta siguiente.
// Un fallo de Redis sólo degrada a la consulta directa.
type CachedDirectory struct {
	next  approval.Directory
	store Store
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedDirectory envuelve next con la caché.
func NewCachedDirectory(next approval.Directory, store Store, ttl time.Duration, log *logger.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{next: next, store: store, ttl: ttl, log: log.Component("gateway_cache")}
}

func (c *CachedDirectory) WorkOrder(ctx context.Context, id int64) *approval.WorkOrder {
	return cached(ctx, c, key("work_order", id), func() *approval.WorkOrder { return c.next.WorkOrder(ctx, id) })
}

func (c *CachedDirectory) LineItem(ctx context.Context, id int64) *approval.LineItem {
	return cached(ctx, c, key("line_item", id), func() *approval.LineItem { return c.next.LineItem(ctx, id) })
}

func (c *CachedDirectory) User(ctx context.Context, id int64) *approval.User {
	return c.next.User(ctx, id)
}

func (c *CachedDirectory) PushMaterialCost(ctx context.Context, workOrderID int64, amount decimal.Decimal) bool {
	return c.next.PushMaterialCost(ctx, workOrderID, amount)
}

func key(kind string, id int64) string {
	return keyNamespace + ":" + kind + ":" + strconv.FormatInt(id, 10)
}

func cached[T any](ctx context.Context, c *CachedDirectory, k string, fetch func() *T) *T {
	raw, err := c.store.Get(ctx, k)
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal([]byte(raw), &v); jerr == nil {
			return &v
		}
		c.log.Debug().Str("key", k).Msg("entrada de caché ilegible, se consulta de nuevo")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", k).Msg("redis no disponible, consulta directa")
	}

	v := fetch()
	if v == nil {
		return nil
	}
	if b, jerr := json.Marshal(v); jerr == nil {
		if serr := c.store.Set(ctx, k, string(b), c.ttl); serr != nil {
			c.log.Warn().Err(serr).Str("key", k).Msg("no se pudo guardar en caché")
		}
	}
	return v
}
