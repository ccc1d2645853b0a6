package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSchema(t *testing.T) {
	path := writeSchemaFile(t, `{
		"fields": [
			{"name": "id", "type": "STRING", "mode": "REQUIRED"},
			{"name": "categories", "type": "STRING", "mode": "REPEATED"},
			{"name": "priceInfo", "type": "RECORD", "fields": [
				{"name": "price", "type": "FLOAT"},
				{"name": "currencyCode", "type": "STRING"}
			]}
		]
	}`)

	schema, err := LoadSchema(path)
	require.NoError(t, err)
	require.Len(t, schema.Fields, 3)

	assert.Equal(t, []string{"id", "categories", "priceInfo"}, schema.FieldNames())

	price, ok := schema.Field("priceInfo")
	require.True(t, ok)
	assert.Equal(t, "RECORD", price.Type)
	require.Len(t, price.Fields, 2)

	cats, ok := schema.Field("CATEGORIES")
	require.True(t, ok)
	assert.True(t, cats.Repeated())

	_, ok = schema.Field("missing")
	assert.False(t, ok)
}

func TestLoadSchemaMissingFile(t *testing.T) {
	_, err := LoadSchema(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadSchemaInvalidJSON(t *testing.T) {
	path := writeSchemaFile(t, "{not json")
	_, err := LoadSchema(path)
	assert.Error(t, err)
}

func TestLoadSchemaEmptyFields(t *testing.T) {
	path := writeSchemaFile(t, `{"fields": []}`)
	_, err := LoadSchema(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no fields")
}

func TestRepeated(t *testing.T) {
	assert.True(t, SchemaField{Mode: "REPEATED"}.Repeated())
	assert.True(t, SchemaField{Mode: "repeated"}.Repeated())
	assert.False(t, SchemaField{Mode: "NULLABLE"}.Repeated())
	assert.False(t, SchemaField{}.Repeated())
}
