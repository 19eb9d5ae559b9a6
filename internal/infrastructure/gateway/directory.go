package gateway

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jhoicas/materiales-api/internal/application/approval"
	"github.com/jhoicas/materiales-api/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Verificar en tiempo de compilación que Directory implementa el puerto.
var _ approval.Directory = (*Directory)(nil)

// Directory traduce las respuestas del sistema externo al modelo del flujo de aprobación.
// El sistema externo no es uniforme en los nombres de campo; se aceptan las variantes conocidas.
type Directory struct {
	client *Client
}

// NewDirectory construye el adaptador sobre client.
func NewDirectory(client *Client) *Directory {
	return &Directory{client: client}
}

// ── Rutas ─────────────────────────────────────────────────────────────────────

func workOrderPaths(id int64) []string {
	s := strconv.FormatInt(id, 10)
	return []string{"/work-orders/" + s, "/api/os/" + s, "/os/" + s}
}

func lineItemPaths(id int64) []string {
	s := strconv.FormatInt(id, 10)
	return []string{"/work-orders/line-items/" + s, "/os/detalhes/" + s}
}

func userPaths(id int64) []string {
	s := strconv.FormatInt(id, 10)
	return []string{"/users/" + s, "/usuarios/" + s}
}

func addCostPaths(id int64) []string {
	s := strconv.FormatInt(id, 10)
	return []string{"/work-orders/" + s + "/add-material-cost", "/api/os/" + s + "/adicionar-custo-material"}
}

// ── Implementación del puerto ─────────────────────────────────────────────────

// WorkOrder consulta una orden de trabajo. nil si no se obtuvo.
func (d *Directory) WorkOrder(ctx context.Context, id int64) *approval.WorkOrder {
	if id <= 0 {
		return nil
	}
	obj := d.client.Get(ctx, "work_order", workOrderPaths(id)...)
	if obj == nil {
		return nil
	}
	wo := &approval.WorkOrder{
		ID:      id,
		Number:  firstString(obj, "number", "os", "numeroOS", "numero", "codigo"),
		Site:    siteOf(obj),
		Segment: segmentOf(obj),
	}
	if v, ok := asInt64(obj["id"]); ok && v > 0 {
		wo.ID = v
	}
	return wo
}

// LineItem consulta el ítem contratado de una orden de trabajo. nil si no se obtuvo
// o si la respuesta no trae el objeto contratado.
func (d *Directory) LineItem(ctx context.Context, id int64) *approval.LineItem {
	if id <= 0 {
		return nil
	}
	obj := d.client.Get(ctx, "line_item", lineItemPaths(id)...)
	if obj == nil {
		return nil
	}
	desc := firstString(obj, "contractedObject", "objetoContratado")
	if desc == "" {
		return nil
	}
	return &approval.LineItem{ID: id, Description: desc, Site: siteOf(obj), Segment: segmentOf(obj)}
}

// User consulta el usuario y sus segmentos. Acepta "segments" (lista) o "segment" (uno solo).
func (d *Directory) User(ctx context.Context, id int64) *approval.User {
	if id <= 0 {
		return nil
	}
	obj := d.client.Get(ctx, "user", userPaths(id)...)
	if obj == nil {
		return nil
	}
	u := &approval.User{ID: id, Name: firstString(obj, "name", "nome")}
	for _, key := range []string{"segments", "segmentos"} {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		for _, raw := range list {
			if s := parseSegment(raw); s != nil {
				u.Segments = append(u.Segments, *s)
			}
		}
	}
	if len(u.Segments) == 0 {
		if s := segmentOf(obj); s != nil {
			u.Segments = append(u.Segments, *s)
		}
	}
	return u
}

// PushMaterialCost suma amount al costo de materiales de la orden de trabajo. El cuerpo es el número decimal.
func (d *Directory) PushMaterialCost(ctx context.Context, workOrderID int64, amount decimal.Decimal) bool {
	if workOrderID <= 0 {
		return false
	}
	return d.client.Post(ctx, "add_material_cost", []byte(amount.String()), addCostPaths(workOrderID)...)
}

// ── Lectura tolerante de campos ───────────────────────────────────────────────

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := asString(obj[k]); ok {
			return s
		}
	}
	return ""
}

func asString(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	case float64:
		return int64(t), true
	}
	return 0, false
}

// siteOf acepta el sitio como texto o como objeto con nombre.
func siteOf(obj map[string]any) string {
	for _, k := range []string{"site", "sitio"} {
		switch t := obj[k].(type) {
		case map[string]any:
			if s := firstString(t, "name", "nome", "descricao"); s != "" {
				return s
			}
		default:
			if s, ok := asString(t); ok {
				return s
			}
		}
	}
	return ""
}

func segmentOf(obj map[string]any) *entity.Segment {
	for _, k := range []string{"segment", "segmento"} {
		if s := parseSegment(obj[k]); s != nil {
			return s
		}
	}
	return nil
}

// parseSegment acepta {id, name|nome|descricao} o sólo el id.
func parseSegment(v any) *entity.Segment {
	if m, ok := v.(map[string]any); ok {
		id, ok := asInt64(m["id"])
		if !ok || id <= 0 {
			return nil
		}
		return &entity.Segment{ID: id, Name: firstString(m, "name", "nome", "descricao")}
	}
	if id, ok := asInt64(v); ok && id > 0 {
		return &entity.Segment{ID: id}
	}
	return nil
}
