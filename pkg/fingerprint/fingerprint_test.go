package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
)

func TestSnapshot_OrderInsensitive(t *testing.T) {
	a := []models.ReferenceEntry{
		{ID: 1, Name: "Acme Corp", ShortName: "Acme"},
		{ID: 2, Name: "Globex Ltd"},
	}
	b := []models.ReferenceEntry{
		{ID: 2, Name: "Globex Ltd"},
		{ID: 1, Name: "Acme Corp", ShortName: "Acme"},
	}

	assert.Equal(t, Snapshot(a), Snapshot(b))
}

func TestSnapshot_DetectsChange(t *testing.T) {
	base := []models.ReferenceEntry{{ID: 1, Name: "Acme Corp"}}
	renamed := []models.ReferenceEntry{{ID: 1, Name: "Acme Corporation"}}
	grown := []models.ReferenceEntry{{ID: 1, Name: "Acme Corp"}, {ID: 2, Name: "Globex"}}

	assert.True(t, HasChanged(Snapshot(base), Snapshot(renamed)))
	assert.True(t, HasChanged(Snapshot(base), Snapshot(grown)))
	assert.False(t, HasChanged(Snapshot(base), Snapshot(base)))
}

func TestSnapshot_Empty(t *testing.T) {
	assert.NotEmpty(t, Snapshot(nil))
	assert.Equal(t, Snapshot(nil), Snapshot([]models.ReferenceEntry{}))
}

func TestAttributes_KeyOrderInsensitive(t *testing.T) {
	a := map[string]any{"country": "CL", "year": float64(2020)}
	b := map[string]any{"year": float64(2020), "country": "CL"}

	assert.Equal(t, Attributes(a), Attributes(b))
	assert.NotEqual(t, Attributes(a), Attributes(map[string]any{"country": "AR", "year": float64(2020)}))
}

func TestAttributes_Nested(t *testing.T) {
	a := map[string]any{"terms": map[string]any{"x": 1.0, "y": 2.0}}
	b := map[string]any{"terms": map[string]any{"y": 2.0, "x": 1.0}}

	assert.Equal(t, Attributes(a), Attributes(b))
}

func TestAttributesFromJSON(t *testing.T) {
	got, err := AttributesFromJSON([]byte(`{"year": 2020, "country": "CL"}`))
	require.NoError(t, err)
	assert.Equal(t, Attributes(map[string]any{"country": "CL", "year": float64(2020)}), got)

	empty, err := AttributesFromJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, Attributes(nil), empty)

	_, err = AttributesFromJSON([]byte(`{broken`))
	assert.Error(t, err)
}
