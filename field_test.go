package godbf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFieldClamps(t *testing.T) {
	cases := []struct {
		typ         FieldType
		length, dec uint8
		wantLen     uint8
		wantDec     uint8
	}{
		{Character, 0, 3, 1, 0},
		{Character, 20, 0, 20, 0},
		{Numeric, 5, 9, 5, 4},
		{Float, 12, 4, 12, 4},
		{Int32, 99, 2, 4, 0},
		{AutoIncrement, 0, 0, 4, 0},
		{Double, 1, 0, 8, 0},
		{Currency, 0, 0, 8, 0},
		{Date, 10, 0, 8, 0},
		{Timestamp, 0, 0, 8, 0},
		{Logical, 5, 0, 1, 0},
		{Memo, 7, 0, 10, 0},
		{Memo, 4, 0, 4, 0},
		{NullFlags, 0, 0, 1, 0},
	}
	for _, c := range cases {
		fd, err := NewField("F", c.typ, c.length, c.dec)
		require.NoError(t, err, "type %s", c.typ)
		assert.Equal(t, c.wantLen, fd.Length, "type %s length", c.typ)
		assert.Equal(t, c.wantDec, fd.Decimal, "type %s decimal", c.typ)
	}
}

func TestNewFieldRejects(t *testing.T) {
	_, err := NewField("", Character, 1, 0)
	require.ErrorIs(t, err, ErrFormat)

	_, err = NewField("F", FieldType('Z'), 1, 0)
	require.ErrorIs(t, err, ErrFormat)
}

func TestNewFieldTruncatesLongName(t *testing.T) {
	fd, err := NewField("ABCDEFGHIJKLMNOP", Character, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJ", fd.Name)
}

func TestFieldDescriptorPackPinnedOffsets(t *testing.T) {
	fd, err := NewField("PRICE", Numeric, 10, 2)
	require.NoError(t, err)

	buf := make([]byte, descriptorSize)
	fd.pack(buf)

	assert.Equal(t, []byte("PRICE\x00\x00\x00\x00\x00\x00"), buf[:11])
	assert.Equal(t, byte('N'), buf[11])
	assert.Equal(t, byte(10), buf[16])
	assert.Equal(t, byte(2), buf[17])

	got, err := unpackFieldDescriptor(buf)
	require.NoError(t, err)
	assert.Equal(t, fd, got)
}

func TestUnpackFieldDescriptorClampsStoredLength(t *testing.T) {
	fd, err := NewField("OK", Logical, 1, 0)
	require.NoError(t, err)
	buf := make([]byte, descriptorSize)
	fd.pack(buf)
	buf[fldOffLength] = 2 // lies about the layout

	got, err := unpackFieldDescriptor(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), got.Length)
}

func TestUnpackFieldDescriptorTruncated(t *testing.T) {
	_, err := unpackFieldDescriptor(make([]byte, descriptorSize-1))
	require.ErrorIs(t, err, ErrFormat)
}
