package godbf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func charTable(t *testing.T, initial ...string) (*Dbf, *memStream) {
	t.Helper()
	d, s := newMemTable(t, VersionDbase3, []FieldDescriptor{
		mustField(t, "V", Character, 1, 0),
	})
	for _, v := range initial {
		require.NoError(t, d.Add([]interface{}{v}))
	}
	return d, s
}

func cells(t *testing.T, d *Dbf) []string {
	t.Helper()
	out := make([]string, d.RecordCount())
	for i := range out {
		v, err := d.FieldByName(uint32(i), "V")
		require.NoError(t, err)
		out[i] = v.(string)
	}
	return out
}

func TestAppendMonotonicity(t *testing.T) {
	d, _ := charTable(t)
	want := []string{"a", "b", "c", "d", "e"}
	for i, v := range want {
		require.NoError(t, d.Add([]interface{}{v}))
		require.Equal(t, uint32(i+1), d.RecordCount())
	}
	assert.Equal(t, want, cells(t, d))
}

func TestAddDefaultRecord(t *testing.T) {
	d, s := charTable(t)
	require.NoError(t, d.Add(nil))
	require.Equal(t, uint32(1), d.RecordCount())

	deleted, err := d.Deleted(0)
	require.NoError(t, err)
	assert.False(t, deleted)

	v, err := d.Field(0, 0)
	require.NoError(t, err)
	assert.Nil(t, v)

	// end-of-file marker trails the record area
	assert.Equal(t, fileTerminator, s.buf[len(s.buf)-1])
	assert.Equal(t, d.header.FileSize(), int64(len(s.buf)))
}

func TestSoftDeleteIdempotence(t *testing.T) {
	d, _ := charTable(t, "a", "b", "c", "d")
	before := cells(t, d)

	require.NoError(t, d.DeleteRange(1, 2))
	for i, want := range []bool{false, true, true, false} {
		got, err := d.Deleted(uint32(i))
		require.NoError(t, err)
		assert.Equal(t, want, got, "record %d", i)
	}
	// field values survive soft deletion
	assert.Equal(t, before, cells(t, d))

	require.NoError(t, d.RestoreRange(1, 2))
	for i := uint32(0); i < 4; i++ {
		got, err := d.Deleted(i)
		require.NoError(t, err)
		assert.False(t, got, "record %d", i)
	}
	assert.Equal(t, before, cells(t, d))
}

func TestRemoveRange(t *testing.T) {
	d, s := charTable(t, "A", "B", "C", "D")
	require.NoError(t, d.RemoveRange(1, 2))

	require.Equal(t, uint32(2), d.RecordCount())
	assert.Equal(t, []string{"A", "D"}, cells(t, d))

	// a subsequent add appends immediately after D
	require.NoError(t, d.Add([]interface{}{"E"}))
	assert.Equal(t, []string{"A", "D", "E"}, cells(t, d))
	assert.Equal(t, fileTerminator, s.buf[len(s.buf)-1])
	assert.Equal(t, d.header.FileSize(), int64(len(s.buf)))
}

func TestInsertAtIndex(t *testing.T) {
	d, s := charTable(t, "a", "b", "c")
	require.NoError(t, d.Insert(1, []interface{}{"x"}))

	require.Equal(t, uint32(4), d.RecordCount())
	assert.Equal(t, []string{"a", "x", "b", "c"}, cells(t, d))
	assert.Equal(t, fileTerminator, s.buf[len(s.buf)-1])

	// insert at the end behaves like Add
	require.NoError(t, d.Insert(4, []interface{}{"z"}))
	assert.Equal(t, []string{"a", "x", "b", "c", "z"}, cells(t, d))

	err := d.Insert(7, nil)
	require.ErrorIs(t, err, ErrRange)
}

func TestCompact(t *testing.T) {
	d, _ := charTable(t, "a", "b", "c", "d", "e", "f")
	require.NoError(t, d.DeleteRange(1, 2))
	require.NoError(t, d.DeleteRange(4, 1))

	removed, err := d.Compact()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	require.Equal(t, uint32(3), d.RecordCount())
	assert.Equal(t, []string{"a", "d", "f"}, cells(t, d))

	for i := uint32(0); i < 3; i++ {
		deleted, err := d.Deleted(i)
		require.NoError(t, err)
		assert.False(t, deleted)
	}

	// idempotent on a clean table
	removed, err = d.Compact()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRangeErrors(t *testing.T) {
	d, _ := charTable(t, "a", "b", "c")

	_, err := d.Get(3)
	require.ErrorIs(t, err, ErrRange)
	err = d.Set(3, []interface{}{"x"})
	require.ErrorIs(t, err, ErrRange)
	err = d.DeleteRange(2, 2)
	require.ErrorIs(t, err, ErrRange)
	err = d.RemoveRange(4, 1)
	require.ErrorIs(t, err, ErrRange)
	_, err = d.Field(0, 5)
	require.ErrorIs(t, err, ErrRange)
	_, err = d.FieldByName(0, "NOPE")
	require.ErrorIs(t, err, ErrFieldNotFound)
}

func TestSetPreservesStatus(t *testing.T) {
	d, _ := charTable(t, "a", "b")
	require.NoError(t, d.DeleteRange(1, 1))
	require.NoError(t, d.Set(1, []interface{}{"z"}))

	deleted, err := d.Deleted(1)
	require.NoError(t, err)
	assert.True(t, deleted)

	v, err := d.Field(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "z", v)
}

func TestHeaderDateTouchedOncePerDay(t *testing.T) {
	d, s := charTable(t)

	// pretend the table was last written long ago
	d.lastTouch = time.Date(1995, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.Add([]interface{}{"a"})) // touches

	year, month, day := time.Now().Date()
	assert.Equal(t, byte(year-1900), s.buf[hdrOffYear])
	assert.Equal(t, byte(month), s.buf[hdrOffMonth])
	assert.Equal(t, byte(day), s.buf[hdrOffDay])

	// same calendar day: the date bytes stay put
	s.buf[hdrOffYear] = 0xEE
	require.NoError(t, d.Add([]interface{}{"b"}))
	assert.Equal(t, byte(0xEE), s.buf[hdrOffYear])
}

func TestClosedTable(t *testing.T) {
	d, _ := charTable(t, "a")
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := d.Get(0)
	require.ErrorIs(t, err, ErrClosed)
	err = d.Add(nil)
	require.ErrorIs(t, err, ErrClosed)
	_, err = d.Compact()
	require.ErrorIs(t, err, ErrClosed)
}

// dbase3Fixture builds a two-field, two-record dBase III table by hand,
// pinning the byte layout independent of the packing code.
func dbase3Fixture() []byte {
	buf := make([]byte, 0, 116)

	header := make([]byte, headerSize)
	header[0] = 0x03 // dBase III, no memo
	header[1], header[2], header[3] = 95, 6, 1
	header[4] = 2     // record count
	header[8] = 97    // header length: 32 + 2*32 + 1
	header[10] = 9    // record length: 1 + 5 + 3
	header[29] = 0x01 // DOS USA
	buf = append(buf, header...)

	name := make([]byte, descriptorSize)
	copy(name, "NAME")
	name[11] = 'C'
	name[16] = 5
	buf = append(buf, name...)

	age := make([]byte, descriptorSize)
	copy(age, "AGE")
	age[11] = 'N'
	age[16] = 3
	buf = append(buf, age...)

	buf = append(buf, headerTerminator)
	buf = append(buf, []byte(" Alice 30")...)
	buf = append(buf, []byte(" Bob    4")...)
	buf = append(buf, fileTerminator)
	return buf
}

func TestOpenDbase3Fixture(t *testing.T) {
	d, err := openStream(&memStream{buf: dbase3Fixture()}, "")
	require.NoError(t, err)

	assert.Equal(t, VersionDbase3, d.Version())
	assert.False(t, d.Version().HasDbtMemo())
	assert.Equal(t, uint32(2), d.RecordCount())
	assert.Equal(t, []string{"NAME", "AGE"}, d.FieldNames())
	assert.Equal(t, time.Date(1995, 6, 1, 0, 0, 0, 0, time.UTC), d.Header().Modified())

	got, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Alice", int64(30)}, got)

	got, err = d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Bob", int64(4)}, got)

	v, err := d.FieldByName(1, "NAME")
	require.NoError(t, err)
	assert.Equal(t, "Bob", v)
}

func TestOpenRejectsCorruptTerminator(t *testing.T) {
	fixture := dbase3Fixture()
	fixture[96] = 0x00
	_, err := openStream(&memStream{buf: fixture}, "")
	require.ErrorIs(t, err, ErrFormat)
}

func TestOpenRejectsInconsistentRecordLength(t *testing.T) {
	fixture := dbase3Fixture()
	fixture[10] = 10
	_, err := openStream(&memStream{buf: fixture}, "")
	require.ErrorIs(t, err, ErrConsistency)
}

func TestOpenRejectsUnknownFieldTag(t *testing.T) {
	fixture := dbase3Fixture()
	fixture[headerSize+11] = 'Z'
	_, err := openStream(&memStream{buf: fixture}, "")
	require.ErrorIs(t, err, ErrFormat)
}

func TestOpenRejectsUnknownCodepage(t *testing.T) {
	fixture := dbase3Fixture()
	fixture[hdrOffLanguageDriver] = 0xEE
	_, err := openStream(&memStream{buf: fixture}, "")
	require.ErrorIs(t, err, ErrFormat)
}

func TestOpenRejectsUntestedVersion(t *testing.T) {
	fixture := dbase3Fixture()
	fixture[0] = byte(VersionVisualFoxPro)
	_, err := openStream(&memStream{buf: fixture}, "")
	require.ErrorIs(t, err, ErrUnsupported)

	// the bypass lets it through since the layout is otherwise plain
	d, err := openStream(&memStream{buf: fixture}, "", WithAnyVersion())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), d.RecordCount())
}

func TestOpenRejectsUnsupportedMemoDialect(t *testing.T) {
	fixture := dbase3Fixture()
	fixture[0] = byte(VersionDbase4Memo)
	_, err := openStream(&memStream{buf: fixture}, "", WithAnyVersion())
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestEncodingOverride(t *testing.T) {
	d, _ := newMemTable(t, VersionDbase3, []FieldDescriptor{
		mustField(t, "CITY", Character, 8, 0),
	}, WithEncoding("gbk"))

	require.NoError(t, d.Add([]interface{}{"上海"}))
	got, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "上海", got[0])
}
