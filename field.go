package godbf

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
)

// FieldDescriptor describes one column: name, type tag, declared length and
// decimal places. Length and decimal are clamped per type by NewField.
type FieldDescriptor struct {
	Name    string
	Type    FieldType
	Length  uint8
	Decimal uint8
}

// Descriptor byte layout (32 bytes per field).
const (
	fldOffName    = 0 // 11 bytes, NUL padded
	fldOffType    = 11
	fldOffLength  = 16
	fldOffDecimal = 17
)

// NewField builds a descriptor, clamping length and decimal count to the
// fixed layout rules of the type. An unrecognized type tag is rejected.
func NewField(name string, typ FieldType, length, decimal uint8) (FieldDescriptor, error) {
	if name == "" {
		return FieldDescriptor{}, errors.Wrap(ErrFormat, "empty field name")
	}
	if len(name) > maxFieldName-1 {
		name = name[:maxFieldName-1]
	}

	switch typ {
	case Character:
		if length == 0 {
			length = 1
		}
		decimal = 0
	case Numeric, Float:
		if length == 0 {
			length = 1
		}
		if decimal >= length {
			decimal = length - 1
		}
	case Int32, AutoIncrement:
		length, decimal = 4, 0
	case Double, Currency, Date, Timestamp, DateTime:
		length, decimal = 8, 0
	case Logical:
		length, decimal = 1, 0
	case Memo, Binary, Ole:
		// block index is either 4 binary bytes or 10 ASCII digits
		if length != 4 {
			length = 10
		}
		decimal = 0
	case NullFlags:
		if length == 0 {
			length = 1
		}
		decimal = 0
	default:
		return FieldDescriptor{}, errors.Wrapf(ErrFormat, "unrecognized field type tag %q", byte(typ))
	}

	return FieldDescriptor{Name: name, Type: typ, Length: length, Decimal: decimal}, nil
}

func NewCharacterField(name string, length uint8) (FieldDescriptor, error) {
	return NewField(name, Character, length, 0)
}

func NewNumericField(name string, length, decimal uint8) (FieldDescriptor, error) {
	return NewField(name, Numeric, length, decimal)
}

func NewFloatField(name string, length, decimal uint8) (FieldDescriptor, error) {
	return NewField(name, Float, length, decimal)
}

func NewLogicalField(name string) (FieldDescriptor, error) {
	return NewField(name, Logical, 1, 0)
}

func NewDateField(name string) (FieldDescriptor, error) {
	return NewField(name, Date, 8, 0)
}

func NewMemoField(name string) (FieldDescriptor, error) {
	return NewField(name, Memo, 10, 0)
}

func unpackFieldDescriptor(b []byte) (FieldDescriptor, error) {
	if len(b) < descriptorSize {
		return FieldDescriptor{}, errors.Wrapf(ErrFormat, "field descriptor truncated to %d bytes", len(b))
	}
	raw := b[fldOffName : fldOffName+maxFieldName]
	end := bytes.IndexByte(raw, null)
	if end == -1 {
		end = len(raw)
	}
	name := strings.TrimSpace(string(raw[:end]))

	// NewField re-applies the per-type clamps; a descriptor whose stored
	// length disagrees with them surfaces as a consistency error at open.
	return NewField(name, FieldType(b[fldOffType]), b[fldOffLength], b[fldOffDecimal])
}

func (fd FieldDescriptor) pack(b []byte) {
	for i := 0; i < descriptorSize; i++ {
		b[i] = null
	}
	copy(b[fldOffName:fldOffName+maxFieldName-1], fd.Name)
	b[fldOffType] = byte(fd.Type)
	b[fldOffLength] = fd.Length
	b[fldOffDecimal] = fd.Decimal
}
