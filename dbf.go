package godbf

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Dbf is the record store: it owns the underlying byte stream, the parsed
// schema and, for memo-enabled tables, the companion memo file. Access is
// single threaded; the store assumes exclusive ownership of both files.
type Dbf struct {
	s      stream
	memo   *MemoFile
	header Header
	schema *Schema
	cx     codecContext

	lastTouch time.Time // calendar day the header date was last written
	closed    bool
}

type options struct {
	charset       string
	blockSize     uint16
	language      byte
	anyVersion    bool
	memo          stream
	skipMemoProbe bool
}

// Option adjusts Open/Create behavior.
type Option func(*options)

// WithEncoding overrides the codepage-derived text encoding with a named
// charset, e.g. "gbk" or "utf-8".
func WithEncoding(charset string) Option {
	return func(o *options) { o.charset = charset }
}

// WithMemoBlockSize sets the allocation unit of a newly created memo file.
func WithMemoBlockSize(size uint16) Option {
	return func(o *options) { o.blockSize = size }
}

// WithLanguageDriver sets the codepage id written by Create.
func WithLanguageDriver(id byte) Option {
	return func(o *options) { o.language = id }
}

// WithAnyVersion bypasses the version-byte check for untested dialects.
// Memo-enabled variants other than dBase III still fail.
func WithAnyVersion() Option {
	return func(o *options) { o.anyVersion = true }
}

func withMemoStream(s stream) Option {
	return func(o *options) { o.memo = s; o.skipMemoProbe = true }
}

// Open opens an existing dbf file read-write. If the version byte flags a
// memo file, the companion .dbt next to the table is opened as well; a
// missing companion is not an error, memo fields just decode as null.
func Open(filename string, opts ...Option) (*Dbf, error) {
	f, err := os.OpenFile(filename, os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", filename)
	}
	d, err := openStream(&fileStream{f}, filename, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return d, nil
}

// Create writes a fresh table with the given schema, plus a fresh memo
// file when the version byte asks for one, and returns the open store.
func Create(filename string, version Version, schema *Schema, opts ...Option) (*Dbf, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", filename)
	}
	d, err := createStream(&fileStream{f}, filename, version, schema, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return d, nil
}

func applyOptions(opts []Option) *options {
	o := &options{language: defaultLanguageDriver}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func memoFilename(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".dbt"
}

// resolveMemo opens or creates the companion memo stream. With a filename
// it is derived by swapping the extension; in-memory tables pass one in.
func resolveMemo(o *options, filename string, create bool) (stream, error) {
	if o.skipMemoProbe {
		return o.memo, nil
	}
	if filename == "" {
		return nil, nil
	}
	name := memoFilename(filename)
	if create {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create memo file %s", name)
		}
		return &fileStream{f}, nil
	}
	f, err := os.OpenFile(name, os.O_RDWR, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open memo file %s", name)
	}
	return &fileStream{f}, nil
}

func checkVersion(v Version, anyVersion bool) error {
	if anyVersion {
		return nil
	}
	switch v {
	case VersionFoxBase, VersionDbase3, VersionDbase3Memo:
		return nil
	}
	return errors.Wrapf(ErrUnsupported, "untested dbf version 0x%02x", byte(v))
}

func openStream(s stream, filename string, opts ...Option) (*Dbf, error) {
	o := applyOptions(opts)

	buf := make([]byte, headerSize)
	if _, err := s.ReadAt(buf, 0); err != nil {
		return nil, errors.Wrap(ErrFormat, "header unreadable")
	}
	header, err := unpackHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(header.Version, o.anyVersion); err != nil {
		return nil, err
	}

	count := header.FieldCount()
	if count <= 0 || (int(header.HeaderLen)-headerSize-1)%descriptorSize != 0 {
		return nil, errors.Wrapf(ErrFormat, "implausible header length %d", header.HeaderLen)
	}
	descriptors := make([]byte, count*descriptorSize+1)
	if _, err := s.ReadAt(descriptors, headerSize); err != nil {
		return nil, errors.Wrap(ErrFormat, "field descriptors unreadable")
	}
	if terminator := descriptors[count*descriptorSize]; terminator != headerTerminator {
		return nil, errors.Wrapf(ErrFormat, "missing header terminator, got 0x%02x", terminator)
	}

	fields := make([]FieldDescriptor, count)
	for i := 0; i < count; i++ {
		fields[i], err = unpackFieldDescriptor(descriptors[i*descriptorSize:])
		if err != nil {
			return nil, err
		}
	}
	schema, err := NewSchema(fields...)
	if err != nil {
		return nil, err
	}
	if schema.HeaderLength() != int(header.HeaderLen) || schema.RecordLength() != int(header.RecordLen) {
		return nil, errors.Wrapf(ErrConsistency,
			"stored header/record length %d/%d, computed %d/%d",
			header.HeaderLen, header.RecordLen, schema.HeaderLength(), schema.RecordLength())
	}

	d := &Dbf{s: s, header: header, schema: schema}
	if err := d.initContext(o); err != nil {
		return nil, err
	}

	if header.Version.HasDbtMemo() {
		if header.Version != VersionDbase3Memo {
			return nil, errors.Wrapf(ErrUnsupported, "memo sub-format of version 0x%02x", byte(header.Version))
		}
		ms, err := resolveMemo(o, filename, false)
		if err != nil {
			return nil, err
		}
		if ms != nil {
			memo, err := openMemo(ms)
			if err != nil {
				_ = ms.Close()
				return nil, err
			}
			d.memo = memo
			d.cx.memo = memo
		}
	}

	d.lastTouch = header.Modified()
	log.Debugf("opened table: version 0x%02x, %d fields, %d records",
		byte(header.Version), schema.FieldCount(), header.RecordCount)
	return d, nil
}

func createStream(s stream, filename string, version Version, schema *Schema, opts ...Option) (*Dbf, error) {
	o := applyOptions(opts)
	if schema == nil {
		return nil, errors.Wrap(ErrFormat, "schema required")
	}
	if err := checkVersion(version, o.anyVersion); err != nil {
		return nil, err
	}
	if _, err := lookupLanguageDriver(o.language); err != nil {
		return nil, err
	}

	header := Header{
		Version:        version,
		HeaderLen:      uint16(schema.HeaderLength()),
		RecordLen:      uint16(schema.RecordLength()),
		LanguageDriver: o.language,
	}
	header.setModified(time.Now())

	// header, descriptors, terminator and end-of-file marker in one pass
	buf := make([]byte, schema.HeaderLength()+1)
	header.pack(buf)
	for i := 0; i < schema.FieldCount(); i++ {
		schema.Field(i).pack(buf[headerSize+i*descriptorSize:])
	}
	buf[len(buf)-2] = headerTerminator
	buf[len(buf)-1] = fileTerminator
	if _, err := s.WriteAt(buf, 0); err != nil {
		return nil, errors.Wrap(err, "failed to write table header")
	}

	d := &Dbf{s: s, header: header, schema: schema}
	if err := d.initContext(o); err != nil {
		return nil, err
	}

	if version.HasDbtMemo() {
		if version != VersionDbase3Memo {
			return nil, errors.Wrapf(ErrUnsupported, "memo sub-format of version 0x%02x", byte(version))
		}
		ms, err := resolveMemo(o, filename, true)
		if err != nil {
			return nil, err
		}
		if ms == nil {
			return nil, errors.Wrap(ErrNoMemo, "version byte requires a memo file")
		}
		memo, err := createMemo(ms, o.blockSize)
		if err != nil {
			_ = ms.Close()
			return nil, err
		}
		d.memo = memo
		d.cx.memo = memo
	}

	d.lastTouch = header.Modified()
	log.Debugf("created table: version 0x%02x, %d fields", byte(version), schema.FieldCount())
	return d, nil
}

func (d *Dbf) initContext(o *options) error {
	driver, err := lookupLanguageDriver(d.header.LanguageDriver)
	if err != nil {
		return err
	}
	d.cx = codecContext{decSep: driver.decSep, text: &charmapCodec{enc: driver.enc}}
	if o.charset != "" {
		codec, err := newMahoniaCodec(o.charset)
		if err != nil {
			return err
		}
		d.cx.text = codec
	}
	return nil
}

// Close releases the table stream and the memo stream, in that scope order.
func (d *Dbf) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var memoErr error
	if d.memo != nil {
		memoErr = d.memo.Close()
	}
	if err := d.s.Close(); err != nil {
		return err
	}
	return memoErr
}

func (d *Dbf) Header() Header {
	return d.header
}

func (d *Dbf) Schema() *Schema {
	return d.schema
}

func (d *Dbf) Version() Version {
	return d.header.Version
}

func (d *Dbf) RecordCount() uint32 {
	return d.header.RecordCount
}

func (d *Dbf) FieldNames() []string {
	return d.schema.FieldNames()
}

func (d *Dbf) recordOffset(i uint32) int64 {
	return int64(d.header.HeaderLen) + int64(i)*int64(d.header.RecordLen)
}

func (d *Dbf) checkIndex(i uint32) error {
	if d.closed {
		return ErrClosed
	}
	if i >= d.header.RecordCount {
		return errors.Wrapf(ErrRange, "record %d out of range [0,%d)", i, d.header.RecordCount)
	}
	return nil
}

func (d *Dbf) readRecord(i uint32) ([]byte, error) {
	buf := make([]byte, d.header.RecordLen)
	if _, err := d.s.ReadAt(buf, d.recordOffset(i)); err != nil {
		return nil, errors.Wrapf(err, "failed to read record %d", i)
	}
	return buf, nil
}

// Get decodes one whole record, one value per schema field. Null fields
// decode to nil.
func (d *Dbf) Get(i uint32) ([]interface{}, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	raw, err := d.readRecord(i)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, d.schema.FieldCount())
	for j := range values {
		fd := d.schema.Field(j)
		offset := d.schema.fieldOffset(j)
		values[j], err = d.schema.codecs[j].decode(raw[offset:offset+int(fd.Length)], &d.cx)
		if err != nil {
			return nil, errors.Wrapf(err, "record %d field %q", i, fd.Name)
		}
	}
	return values, nil
}

// encodeRecord fills buf (one record, status already set) from values.
// Nothing is written to the stream, so a type mismatch mutates no bytes.
func (d *Dbf) encodeRecord(values []interface{}, buf []byte) error {
	if len(values) != d.schema.FieldCount() {
		return errors.Wrapf(ErrTypeMismatch, "expected %d values, got %d", d.schema.FieldCount(), len(values))
	}
	for j, v := range values {
		fd := d.schema.Field(j)
		offset := d.schema.fieldOffset(j)
		if err := d.schema.codecs[j].encode(v, buf[offset:offset+int(fd.Length)], &d.cx); err != nil {
			return errors.Wrapf(err, "field %q", fd.Name)
		}
	}
	return nil
}

// Set overwrites record i with the given values, preserving its status byte.
func (d *Dbf) Set(i uint32, values []interface{}) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	status, err := d.status(i)
	if err != nil {
		return err
	}
	buf := make([]byte, d.header.RecordLen)
	fillSpaces(buf)
	buf[0] = status
	if err := d.encodeRecord(values, buf); err != nil {
		return err
	}
	if _, err := d.s.WriteAt(buf, d.recordOffset(i)); err != nil {
		return errors.Wrapf(err, "failed to write record %d", i)
	}
	return d.touchDate()
}

// Field decodes a single field without materializing the whole record.
func (d *Dbf) Field(i uint32, j int) (interface{}, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	if err := d.schema.checkFieldIndex(j); err != nil {
		return nil, err
	}
	fd := d.schema.Field(j)
	raw := make([]byte, fd.Length)
	if _, err := d.s.ReadAt(raw, d.recordOffset(i)+int64(d.schema.fieldOffset(j))); err != nil {
		return nil, errors.Wrapf(err, "failed to read record %d field %q", i, fd.Name)
	}
	v, err := d.schema.codecs[j].decode(raw, &d.cx)
	if err != nil {
		return nil, errors.Wrapf(err, "record %d field %q", i, fd.Name)
	}
	return v, nil
}

// FieldByName is Field with a name lookup.
func (d *Dbf) FieldByName(i uint32, name string) (interface{}, error) {
	j, ok := d.schema.FieldIndex(name)
	if !ok {
		return nil, errors.Wrapf(ErrFieldNotFound, "%q", name)
	}
	return d.Field(i, j)
}

// SetField encodes a single field in place. The value is encoded into a
// scratch slice first; a type mismatch leaves the record untouched.
func (d *Dbf) SetField(i uint32, j int, v interface{}) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	if err := d.schema.checkFieldIndex(j); err != nil {
		return err
	}
	fd := d.schema.Field(j)
	raw := make([]byte, fd.Length)
	if err := d.schema.codecs[j].encode(v, raw, &d.cx); err != nil {
		return errors.Wrapf(err, "field %q", fd.Name)
	}
	if _, err := d.s.WriteAt(raw, d.recordOffset(i)+int64(d.schema.fieldOffset(j))); err != nil {
		return errors.Wrapf(err, "failed to write record %d field %q", i, fd.Name)
	}
	return d.touchDate()
}

// SetFieldByName is SetField with a name lookup.
func (d *Dbf) SetFieldByName(i uint32, name string, v interface{}) error {
	j, ok := d.schema.FieldIndex(name)
	if !ok {
		return errors.Wrapf(ErrFieldNotFound, "%q", name)
	}
	return d.SetField(i, j, v)
}

// Add appends one record past the current end and rewrites the trailing
// end-of-file marker. A nil values slice appends a default, space-filled
// valid record.
func (d *Dbf) Add(values []interface{}) error {
	if d.closed {
		return ErrClosed
	}
	buf := make([]byte, int(d.header.RecordLen)+1)
	fillSpaces(buf[:d.header.RecordLen])
	buf[0] = validFlag
	buf[d.header.RecordLen] = fileTerminator
	if values != nil {
		if err := d.encodeRecord(values, buf[:d.header.RecordLen]); err != nil {
			return err
		}
	}
	if _, err := d.s.WriteAt(buf, d.recordOffset(d.header.RecordCount)); err != nil {
		return errors.Wrap(err, "failed to append record")
	}
	d.header.RecordCount++
	if err := d.persistRecordCount(); err != nil {
		return err
	}
	return d.touchDate()
}

// Insert places a new record at index i, right-shifting the region at that
// offset by one record length. Insert at RecordCount is equivalent to Add.
func (d *Dbf) Insert(i uint32, values []interface{}) error {
	if d.closed {
		return ErrClosed
	}
	if i > d.header.RecordCount {
		return errors.Wrapf(ErrRange, "record %d out of range [0,%d]", i, d.header.RecordCount)
	}
	if i == d.header.RecordCount {
		return d.Add(values)
	}
	buf := make([]byte, d.header.RecordLen)
	fillSpaces(buf)
	buf[0] = validFlag
	if values != nil {
		if err := d.encodeRecord(values, buf); err != nil {
			return err
		}
	}
	if err := insertRange(d.s, d.recordOffset(i), buf); err != nil {
		return err
	}
	d.header.RecordCount++
	if err := d.persistRecordCount(); err != nil {
		return err
	}
	return d.touchDate()
}

func (d *Dbf) status(i uint32) (byte, error) {
	status := make([]byte, 1)
	if _, err := d.s.ReadAt(status, d.recordOffset(i)); err != nil {
		return 0, errors.Wrapf(err, "failed to read status of record %d", i)
	}
	return status[0], nil
}

// Deleted reports whether record i is soft-deleted.
func (d *Dbf) Deleted(i uint32) (bool, error) {
	if err := d.checkIndex(i); err != nil {
		return false, err
	}
	status, err := d.status(i)
	if err != nil {
		return false, err
	}
	return status == deletedFlag, nil
}

func (d *Dbf) checkRange(start, count uint32) error {
	if d.closed {
		return ErrClosed
	}
	if start > d.header.RecordCount || count > d.header.RecordCount-start {
		return errors.Wrapf(ErrRange, "records [%d,%d) out of range [0,%d)", start, start+count, d.header.RecordCount)
	}
	return nil
}

func (d *Dbf) setStatusRange(start, count uint32, status byte) error {
	if err := d.checkRange(start, count); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	flag := []byte{status}
	for i := start; i < start+count; i++ {
		if _, err := d.s.WriteAt(flag, d.recordOffset(i)); err != nil {
			return errors.Wrapf(err, "failed to flag record %d", i)
		}
	}
	return d.touchDate()
}

// DeleteRange soft-deletes count records starting at start by flipping
// their status bytes. No data moves.
func (d *Dbf) DeleteRange(start, count uint32) error {
	return d.setStatusRange(start, count, deletedFlag)
}

// RestoreRange undoes DeleteRange; field values are untouched either way.
func (d *Dbf) RestoreRange(start, count uint32) error {
	return d.setStatusRange(start, count, validFlag)
}

// RemoveRange physically deletes count records starting at start, shifting
// everything after them (including the end-of-file marker) left.
func (d *Dbf) RemoveRange(start, count uint32) error {
	if err := d.checkRange(start, count); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	length := int64(count) * int64(d.header.RecordLen)
	if err := removeRange(d.s, d.recordOffset(start), length); err != nil {
		return err
	}
	d.header.RecordCount -= count
	if err := d.persistRecordCount(); err != nil {
		return err
	}
	log.Debugf("removed %d record(s) at %d", count, start)
	return d.touchDate()
}

// Compact removes every soft-deleted record and returns how many were
// dropped. It scans backward and removes contiguous runs as it finds them,
// so indices of records before the scan position stay valid throughout.
func (d *Dbf) Compact() (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	removed := 0
	for i := int64(d.header.RecordCount) - 1; i >= 0; {
		status, err := d.status(uint32(i))
		if err != nil {
			return removed, err
		}
		if status != deletedFlag {
			i--
			continue
		}
		j := i
		for j >= 0 {
			status, err := d.status(uint32(j))
			if err != nil {
				return removed, err
			}
			if status != deletedFlag {
				break
			}
			j--
		}
		run := uint32(i - j)
		if err := d.RemoveRange(uint32(j+1), run); err != nil {
			return removed, err
		}
		removed += int(run)
		i = j
	}
	return removed, nil
}

func (d *Dbf) persistRecordCount() error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, d.header.RecordCount)
	if _, err := d.s.WriteAt(buf, hdrOffRecordCount); err != nil {
		return errors.Wrap(err, "failed to update record count")
	}
	return nil
}

// touchDate writes the header's last-update date, at most once per
// distinct calendar day.
func (d *Dbf) touchDate() error {
	now := time.Now()
	y1, m1, day1 := now.Date()
	y2, m2, day2 := d.lastTouch.Date()
	if y1 == y2 && m1 == m2 && day1 == day2 {
		return nil
	}
	d.header.setModified(now)
	date := []byte{d.header.Year, d.header.Month, d.header.Day}
	if _, err := d.s.WriteAt(date, hdrOffYear); err != nil {
		return errors.Wrap(err, "failed to update header date")
	}
	d.lastTouch = now
	return nil
}

var _ io.Closer = (*Dbf)(nil)
