package godbf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaLayout(t *testing.T) {
	s, err := NewSchema(
		mustField(t, "NAME", Character, 12, 0),
		mustField(t, "AGE", Numeric, 3, 0),
		mustField(t, "ACTIVE", Logical, 1, 0),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, s.FieldCount())
	assert.Equal(t, []string{"NAME", "AGE", "ACTIVE"}, s.FieldNames())

	// status byte first, then the fields back to back
	assert.Equal(t, 1, s.fieldOffset(0))
	assert.Equal(t, 13, s.fieldOffset(1))
	assert.Equal(t, 16, s.fieldOffset(2))
	assert.Equal(t, 17, s.RecordLength())
	assert.Equal(t, 32+3*32+1, s.HeaderLength())

	i, ok := s.FieldIndex("AGE")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = s.FieldIndex("NOPE")
	assert.False(t, ok)
}

func TestSchemaDuplicateNameFirstWins(t *testing.T) {
	s, err := NewSchema(
		mustField(t, "X", Character, 2, 0),
		mustField(t, "X", Numeric, 3, 0),
	)
	require.NoError(t, err)

	i, ok := s.FieldIndex("X")
	require.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestSchemaRejects(t *testing.T) {
	_, err := NewSchema()
	require.ErrorIs(t, err, ErrFormat)

	// a forged descriptor that never went through NewField
	_, err = NewSchema(FieldDescriptor{Name: "X", Type: FieldType('Z'), Length: 1})
	require.ErrorIs(t, err, ErrFormat)
}
