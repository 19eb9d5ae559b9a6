// Package gateway es el adaptador hacia el sistema externo de órdenes de trabajo (monolito).
// Todas las llamadas son best-effort: un fallo se registra y se devuelve como "sin datos".
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/materiales-api/internal/domain"
	"github.com/jhoicas/materiales-api/pkg/config"
	"github.com/jhoicas/materiales-api/pkg/logger"
	"github.com/jhoicas/materiales-api/pkg/metrics"
)

const maxBodyBytes = 256 * 1024

// Client recorre la lista de direcciones candidatas hasta que una responde.
// No hay reintentos más allá de la lista; cada intento tiene su propio timeout.
type Client struct {
	bases      []string
	timeout    time.Duration
	httpClient *http.Client
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewClient construye el cliente. m puede ser nil.
func NewClient(cfg config.GatewayConfig, log *logger.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		bases:      Candidates(cfg.BaseURL, cfg.Aliases, cfg.LocalFallback),
		timeout:    timeout,
		httpClient: &http.Client{},
		log:        log.Component("gateway"),
		metrics:    m,
	}
}

// Candidates arma la lista ordenada y sin duplicados: principal, alias y fallback local.
func Candidates(primary string, aliases []string, local string) []string {
	all := append([]string{primary}, aliases...)
	all = append(all, local)

	out := make([]string, 0, len(all))
	seen := map[string]bool{}
	for _, b := range all {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// Bases devuelve las direcciones en el orden en que se prueban.
func (c *Client) Bases() []string {
	return append([]string(nil), c.bases...)
}

// Get prueba cada dirección con cada path alternativo y devuelve el primer objeto JSON no vacío.
// nil si ninguna respondió.
func (c *Client) Get(ctx context.Context, op string, paths ...string) map[string]any {
	start := time.Now()
	for i, base := range c.bases {
		for _, path := range paths {
			obj, err := c.getOnce(ctx, base+path)
			if err == nil && len(obj) > 0 {
				c.observe(op, i, true, start)
				return obj
			}
			c.warn(op, base, path, err)
		}
	}
	c.observe(op, 0, false, start)
	return nil
}

// Post envía body (JSON) probando cada dirección con cada path alternativo, en el mismo orden que Get.
// Se detiene en el primer 2xx; false si ninguna combinación lo aceptó.
func (c *Client) Post(ctx context.Context, op string, body []byte, paths ...string) bool {
	start := time.Now()
	for i, base := range c.bases {
		for _, path := range paths {
			err := c.postOnce(ctx, base+path, body)
			if err == nil {
				c.observe(op, i, true, start)
				return true
			}
			c.warn(op, base, path, err)
		}
	}
	c.observe(op, 0, false, start)
	return false
}

func (c *Client) getOnce(ctx context.Context, url string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("respuesta no es un objeto JSON: %v: %w", err, domain.ErrIntegration)
	}
	return obj, nil
}

func (c *Client) postOnce(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamada HTTP fallida: %v: %w", err, domain.ErrIntegration)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("leer respuesta: %v: %w", err, domain.ErrIntegration)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrIntegration)
	}
	return raw, nil
}

func (c *Client) warn(op, base, path string, err error) {
	ev := c.log.Warn().Str("op", op).Str("base_url", base).Str("path", path)
	if err != nil {
		ev = ev.Err(err)
	} else {
		ev = ev.Str("error", "respuesta vacía")
	}
	ev.Msg("falla de integración con el sistema externo")
}

func (c *Client) observe(op string, index int, ok bool, start time.Time) {
	outcome := metrics.OutcomeFailed
	switch {
	case ok && index == 0:
		outcome = metrics.OutcomeOK
	case ok:
		outcome = metrics.OutcomeFallback
	}
	c.metrics.ObserveGatewayCall(op, outcome, time.Since(start))
}
