package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_SimplePath(t *testing.T) {
	e := New()
	data := map[string]any{"name": "Acme Corp"}

	value, err := e.Extract(data, "name")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", value)
}

func TestExtract_NestedPath(t *testing.T) {
	e := New()
	data := map[string]any{
		"terms": map[string]any{"multiplier": 2.5},
	}

	value, err := e.Extract(data, "terms.multiplier")
	require.NoError(t, err)
	assert.Equal(t, 2.5, value)
}

func TestExtract_ArrayIndex(t *testing.T) {
	e := New()
	data := map[string]any{
		"issuers": []any{
			map[string]any{"name": "First Issuer"},
			map[string]any{"name": "Second Issuer"},
		},
	}

	value, err := e.Extract(data, "issuers[1].name")
	require.NoError(t, err)
	assert.Equal(t, "Second Issuer", value)
}

func TestExtract_MissingKeyIsNil(t *testing.T) {
	e := New()

	value, err := e.Extract(map[string]any{"name": "x"}, "missing.path")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestExtract_IndexOutOfRangeIsNil(t *testing.T) {
	e := New()
	data := map[string]any{"items": []any{"only"}}

	value, err := e.Extract(data, "items[5]")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestExtract_TypeMismatch(t *testing.T) {
	e := New()

	_, err := e.Extract(map[string]any{"name": "x"}, "name.deeper")
	assert.Error(t, err)
}

func TestExtractString(t *testing.T) {
	e := New()
	data := map[string]any{"year": float64(2024), "active": true}

	year, err := e.ExtractString(data, "year")
	require.NoError(t, err)
	require.NotNil(t, year)
	assert.Equal(t, "2024", *year)

	active, err := e.ExtractString(data, "active")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "true", *active)

	missing, err := e.ExtractString(data, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFromJSON(t *testing.T) {
	m, err := FromJSON([]byte(`{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1), m["a"])

	_, err = FromJSON([]byte(`not json`))
	assert.Error(t, err)
}
