package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_EmbeddedTableIsValid(t *testing.T) {
	table := Default()

	require.NoError(t, table.Validate())
	assert.Equal(t, DefaultFallbackStock, table.FallbackStock)
	assert.NotEmpty(t, table.Envelope.List)

	for _, name := range requiredEntities {
		_, ok := table.Entities[name]
		assert.True(t, ok, "entity %s must be described", name)
	}
}

func TestParse_AppliesDefaults(t *testing.T) {
	table, err := Parse([]byte(`
entities:
  product:
    id: {from: [id]}
    name: {}
`))
	require.NoError(t, err)

	assert.Equal(t, "1", table.Version)
	assert.Equal(t, DefaultFallbackStock, table.FallbackStock)
	assert.Equal(t, []string{"data"}, table.Envelope.Object)

	name, err := table.Field(EntityProduct, "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, name.From)
	assert.Equal(t, KindString, name.Kind)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("entities: [not a map"))
	require.Error(t, err)
}

func TestValidate_ReportsProblems(t *testing.T) {
	table, err := Parse([]byte(`
status_aliases:
  raro: teleported
entities:
  product:
    id: {from: [id, id], kind: int}
    price: {from: [price], kind: money}
`))
	require.NoError(t, err)

	err = table.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEntity))
	assert.Contains(t, err.Error(), `duplicate candidate "id"`)
	assert.Contains(t, err.Error(), `unknown kind "money"`)
	assert.Contains(t, err.Error(), `teleported`)
}

func TestTable_FieldLookupErrors(t *testing.T) {
	table := Default()

	_, err := table.Field("warehouse", "id")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = table.Field(EntityProduct, "weight")
	assert.ErrorIs(t, err, ErrUnknownField)

	f, err := table.Field(EntityProduct, "price")
	require.NoError(t, err)
	assert.Equal(t, KindDecimal, f.Kind)
	assert.Equal(t, "price", f.From[0])
}
