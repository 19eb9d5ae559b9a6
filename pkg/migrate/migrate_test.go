package migrate

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_MigracionesEmbebidas(t *testing.T) {
	assert.NoError(t, Validate())
}

func TestMigraciones_Restricciones(t *testing.T) {
	read := func(suffix string) string {
		matches, err := fs.Glob(migrationsFS, Dir+"/*_"+suffix+".sql")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		b, err := fs.ReadFile(migrationsFS, matches[0])
		require.NoError(t, err)
		return string(b)
	}

	materials := read("create_materials")
	for _, sub := range []string{
		"CONSTRAINT materials_code_key UNIQUE (code)",
		"CHECK (balance >= 0)",
		"avg_cost      NUMERIC(18,4),",
		"DROP TABLE IF EXISTS materials",
	} {
		assert.Contains(t, materials, sub)
	}

	requests := read("create_material_requests")
	for _, sub := range []string{
		"FOREIGN KEY (request_id) REFERENCES material_requests(id) ON DELETE CASCADE",
		"CHECK (status IN ('PENDING_STAGE_1', 'PENDING_STAGE_2', 'APPROVED', 'REJECTED'))",
		"DROP TABLE IF EXISTS material_request_items",
	} {
		assert.Contains(t, requests, sub)
	}
}

func TestValidateFS_Errores(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{"nombre inválido", fstest.MapFS{"m/1_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down")}}, "inválido"},
		{"sin down", fstest.MapFS{"m/20260101000000_init.sql": {Data: []byte("-- +goose Up")}}, "sin marcas"},
		{"duplicada", fstest.MapFS{
			"m/20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down")},
			"m/20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down")},
		}, "duplicada"},
		{"vacío", fstest.MapFS{"m/README.md": {Data: []byte("x")}}, "no hay migraciones"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFS(tt.files, "m")
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
