package godbf

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// codecContext carries the per-file state the stateless codecs need: the
// decimal-separator character from the language driver, the text codec and
// the optional memo file.
type codecContext struct {
	decSep byte
	text   textCodec
	memo   *MemoFile
}

// fieldCodec is the symmetric encode/decode pair of one field. raw is
// always exactly the field's declared length. A nil value means null.
type fieldCodec interface {
	decode(raw []byte, cx *codecContext) (interface{}, error)
	encode(v interface{}, raw []byte, cx *codecContext) error
}

// newFieldCodec builds the codec for a descriptor once, at schema
// construction time.
func newFieldCodec(fd FieldDescriptor) (fieldCodec, error) {
	switch fd.Type {
	case Character:
		return characterCodec{}, nil
	case Numeric, Float:
		return numericCodec{decimal: fd.Decimal}, nil
	case Int32, AutoIncrement:
		return int32Codec{}, nil
	case Double:
		return doubleCodec{}, nil
	case Currency:
		return currencyCodec{}, nil
	case Date:
		return dateCodec{}, nil
	case Timestamp, DateTime:
		return timestampCodec{}, nil
	case Logical:
		return logicalCodec{}, nil
	case Memo:
		return memoCodec{text: true}, nil
	case Binary, Ole:
		return memoCodec{text: false}, nil
	case NullFlags:
		return nullFlagsCodec{}, nil
	default:
		return nil, errors.Wrapf(ErrFormat, "unrecognized field type tag %q", byte(fd.Type))
	}
}

const trimCutset = " \x00"

func fillSpaces(b []byte) {
	for i := range b {
		b[i] = space
	}
}

// rightAlign writes s into the tail of b, space-filling the head.
func rightAlign(b []byte, s string) error {
	if len(s) > len(b) {
		return errors.Wrapf(ErrTypeMismatch, "value %q overflows field length %d", s, len(b))
	}
	fillSpaces(b)
	copy(b[len(b)-len(s):], s)
	return nil
}

// Character: codepage text, space padded to the right.
type characterCodec struct{}

func (characterCodec) decode(raw []byte, cx *codecContext) (interface{}, error) {
	s, err := cx.text.Decode(raw)
	if err != nil {
		return nil, err
	}
	s = strings.Trim(s, trimCutset)
	if s == "" {
		return nil, nil
	}
	return s, nil
}

func (characterCodec) encode(v interface{}, raw []byte, cx *codecContext) error {
	fillSpaces(raw)
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return errors.Wrapf(ErrTypeMismatch, "character field wants string, got %T", v)
	}
	b, err := cx.text.Encode(s)
	if err != nil {
		return err
	}
	// truncate on overflow
	copy(raw, b)
	return nil
}

// Numeric/Float: right-aligned ASCII digits; the language driver's decimal
// separator substitutes for '.'.
type numericCodec struct {
	decimal uint8
}

func (c numericCodec) decode(raw []byte, cx *codecContext) (interface{}, error) {
	s := strings.Trim(string(raw), trimCutset)
	if s == "" {
		return nil, nil
	}
	if c.decimal == 0 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "bad numeric field %q", s)
		}
		return n, nil
	}
	if cx.decSep != '.' {
		s = strings.Replace(s, string([]byte{cx.decSep}), ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "bad numeric field %q", s)
	}
	return f, nil
}

func (c numericCodec) encode(v interface{}, raw []byte, cx *codecContext) error {
	if v == nil {
		fillSpaces(raw)
		return nil
	}
	if c.decimal == 0 {
		var n int64
		switch t := v.(type) {
		case int:
			n = int64(t)
		case int32:
			n = int64(t)
		case int64:
			n = t
		default:
			return errors.Wrapf(ErrTypeMismatch, "numeric field wants integer, got %T", v)
		}
		return rightAlign(raw, strconv.FormatInt(n, 10))
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return errors.Wrapf(ErrTypeMismatch, "numeric field wants float, got %T", v)
	}
	s := strconv.FormatFloat(f, 'f', int(c.decimal), 64)
	if cx.decSep != '.' {
		s = strings.Replace(s, ".", string([]byte{cx.decSep}), 1)
	}
	return rightAlign(raw, s)
}

// Int32/AutoIncrement: 4-byte little-endian signed integer.
type int32Codec struct{}

func (int32Codec) decode(raw []byte, _ *codecContext) (interface{}, error) {
	return int32(binary.LittleEndian.Uint32(raw)), nil
}

func (int32Codec) encode(v interface{}, raw []byte, _ *codecContext) error {
	var n int32
	switch t := v.(type) {
	case nil:
	case int32:
		n = t
	case int:
		if t > math.MaxInt32 || t < math.MinInt32 {
			return errors.Wrapf(ErrTypeMismatch, "value %d overflows int32 field", t)
		}
		n = int32(t)
	case int64:
		if t > math.MaxInt32 || t < math.MinInt32 {
			return errors.Wrapf(ErrTypeMismatch, "value %d overflows int32 field", t)
		}
		n = int32(t)
	default:
		return errors.Wrapf(ErrTypeMismatch, "int32 field wants integer, got %T", v)
	}
	binary.LittleEndian.PutUint32(raw, uint32(n))
	return nil
}

// Double: 8-byte little-endian IEEE-754.
type doubleCodec struct{}

func (doubleCodec) decode(raw []byte, _ *codecContext) (interface{}, error) {
	return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
}

func (doubleCodec) encode(v interface{}, raw []byte, _ *codecContext) error {
	var f float64
	switch t := v.(type) {
	case nil:
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return errors.Wrapf(ErrTypeMismatch, "double field wants float, got %T", v)
	}
	binary.LittleEndian.PutUint64(raw, math.Float64bits(f))
	return nil
}

// Currency: stored as a little-endian double, fixed-point decimal at the
// API boundary.
type currencyCodec struct{}

func (currencyCodec) decode(raw []byte, _ *codecContext) (interface{}, error) {
	f := math.Float64frombits(binary.LittleEndian.Uint64(raw))
	return decimal.NewFromFloat(f), nil
}

func (currencyCodec) encode(v interface{}, raw []byte, _ *codecContext) error {
	var f float64
	switch t := v.(type) {
	case nil:
	case decimal.Decimal:
		f, _ = t.Float64()
	case float64:
		f = t
	default:
		return errors.Wrapf(ErrTypeMismatch, "currency field wants decimal, got %T", v)
	}
	binary.LittleEndian.PutUint64(raw, math.Float64bits(f))
	return nil
}

// Date: 8 ASCII digits yyyyMMdd, null when blank.
type dateCodec struct{}

func (dateCodec) decode(raw []byte, _ *codecContext) (interface{}, error) {
	s := strings.Trim(string(raw), trimCutset)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "bad date field %q", s)
	}
	return t, nil
}

func (dateCodec) encode(v interface{}, raw []byte, _ *codecContext) error {
	if v == nil {
		fillSpaces(raw)
		return nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return errors.Wrapf(ErrTypeMismatch, "date field wants time.Time, got %T", v)
	}
	copy(raw, t.Format("20060102"))
	return nil
}

// Timestamp: two little-endian 32-bit integers, a Julian day number and
// milliseconds since midnight. Null when both are zero.
type timestampCodec struct{}

func (timestampCodec) decode(raw []byte, _ *codecContext) (interface{}, error) {
	day := binary.LittleEndian.Uint32(raw[:4])
	msec := binary.LittleEndian.Uint32(raw[4:])
	if day == 0 && msec == 0 {
		return nil, nil
	}
	year, month, d := civilFromJulianDay(int(day))
	t := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration(msec) * time.Millisecond), nil
}

func (timestampCodec) encode(v interface{}, raw []byte, _ *codecContext) error {
	if v == nil {
		for i := range raw {
			raw[i] = 0
		}
		return nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return errors.Wrapf(ErrTypeMismatch, "timestamp field wants time.Time, got %T", v)
	}
	t = t.UTC()
	day := julianDayNumber(t.Date())
	hour, minute, sec := t.Clock()
	msec := ((hour*60+minute)*60+sec)*1000 + t.Nanosecond()/int(time.Millisecond)
	binary.LittleEndian.PutUint32(raw[:4], uint32(day))
	binary.LittleEndian.PutUint32(raw[4:], uint32(msec))
	return nil
}

// julianDayNumber converts a proleptic Gregorian date to a Julian day
// number (1721426 corresponds to January 1st of year 1).
func julianDayNumber(year int, month time.Month, day int) int {
	a := (14 - int(month)) / 12
	y := year + 4800 - a
	m := int(month) + 12*a - 3
	return day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

func civilFromJulianDay(jdn int) (int, time.Month, int) {
	a := jdn + 32044
	b := (4*a + 3) / 146097
	c := a - 146097*b/4
	d := (4*c + 3) / 1461
	e := c - 1461*d/4
	m := (5*e + 2) / 153
	day := e - (153*m+2)/5 + 1
	month := m + 3 - 12*(m/10)
	year := 100*b + d - 4800 + m/10
	return year, time.Month(month), day
}

// Logical: one ASCII character.
type logicalCodec struct{}

func (logicalCodec) decode(raw []byte, _ *codecContext) (interface{}, error) {
	switch raw[0] {
	case 'T', 't', 'Y', 'y', '1':
		return true, nil
	case 'F', 'f', 'N', 'n', '0':
		return false, nil
	case '?', space, null:
		return nil, nil
	default:
		return nil, errors.Wrapf(ErrFormat, "bad logical field byte 0x%02x", raw[0])
	}
}

func (logicalCodec) encode(v interface{}, raw []byte, _ *codecContext) error {
	switch t := v.(type) {
	case nil:
		raw[0] = '?'
	case bool:
		if t {
			raw[0] = 'T'
		} else {
			raw[0] = 'F'
		}
	default:
		return errors.Wrapf(ErrTypeMismatch, "logical field wants bool, got %T", v)
	}
	return nil
}

// Memo/Binary/Ole: the record area holds a block index into the memo file,
// either 4 binary bytes or 10 right-justified ASCII digits.
type memoCodec struct {
	text bool
}

func (c memoCodec) decode(raw []byte, cx *codecContext) (interface{}, error) {
	index, err := readMemoIndex(raw)
	if err != nil {
		return nil, err
	}
	if index == 0 || cx.memo == nil {
		return nil, nil
	}
	s, err := cx.memo.Read(index)
	if err != nil {
		return nil, err
	}
	if c.text {
		return s, nil
	}
	return []byte(s), nil
}

func (c memoCodec) encode(v interface{}, raw []byte, cx *codecContext) error {
	if v == nil {
		writeMemoIndex(raw, 0)
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return errors.Wrapf(ErrTypeMismatch, "memo field wants string, got %T", v)
	}
	if cx.memo == nil {
		return errors.Wrap(ErrNoMemo, "cannot write memo field")
	}
	index, err := cx.memo.Append(s)
	if err != nil {
		return err
	}
	writeMemoIndex(raw, index)
	return nil
}

func readMemoIndex(raw []byte) (uint32, error) {
	if len(raw) == 4 {
		return binary.LittleEndian.Uint32(raw), nil
	}
	s := strings.Trim(string(raw), trimCutset)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrFormat, "bad memo block index %q", s)
	}
	return uint32(n), nil
}

func writeMemoIndex(raw []byte, index uint32) {
	if len(raw) == 4 {
		binary.LittleEndian.PutUint32(raw, index)
		return
	}
	if index == 0 {
		fillSpaces(raw)
		return
	}
	// length 10 is clamped at descriptor construction, so this cannot fail
	_ = rightAlign(raw, strconv.FormatUint(uint64(index), 10))
}

// NullFlags: internal system field, exposed as raw bytes.
type nullFlagsCodec struct{}

func (nullFlagsCodec) decode(raw []byte, _ *codecContext) (interface{}, error) {
	return append([]byte(nil), raw...), nil
}

func (nullFlagsCodec) encode(v interface{}, raw []byte, _ *codecContext) error {
	switch t := v.(type) {
	case nil:
		for i := range raw {
			raw[i] = 0
		}
	case []byte:
		if len(t) != len(raw) {
			return errors.Wrapf(ErrTypeMismatch, "null flags field wants %d bytes, got %d", len(raw), len(t))
		}
		copy(raw, t)
	default:
		return errors.Wrapf(ErrTypeMismatch, "null flags field wants []byte, got %T", v)
	}
	return nil
}
