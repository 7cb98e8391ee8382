package godbf

import (
	"github.com/pkg/errors"
)

// Schema is the ordered, immutable field layout of a table. It caches the
// per-field byte offsets within a record, the per-field codecs and a
// name-to-index lookup (first match wins on duplicate names).
type Schema struct {
	fields    []FieldDescriptor
	offsets   []int
	codecs    []fieldCodec
	byName    map[string]int
	recordLen int
}

// NewSchema derives the record layout from the given descriptors. It fails
// if any descriptor carries an unrecognized type tag.
func NewSchema(fields ...FieldDescriptor) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.Wrap(ErrFormat, "schema needs at least one field")
	}

	s := &Schema{
		fields:  append([]FieldDescriptor(nil), fields...),
		offsets: make([]int, len(fields)),
		codecs:  make([]fieldCodec, len(fields)),
		byName:  make(map[string]int, len(fields)),
	}

	offset := 1 // status byte comes first
	for i, fd := range s.fields {
		codec, err := newFieldCodec(fd)
		if err != nil {
			return nil, err
		}
		s.codecs[i] = codec
		s.offsets[i] = offset
		offset += int(fd.Length)
		if _, ok := s.byName[fd.Name]; !ok {
			s.byName[fd.Name] = i
		}
	}
	s.recordLen = offset
	return s, nil
}

func (s *Schema) FieldCount() int {
	return len(s.fields)
}

// Field returns the descriptor at index i.
func (s *Schema) Field(i int) FieldDescriptor {
	return s.fields[i]
}

func (s *Schema) Fields() []FieldDescriptor {
	return append([]FieldDescriptor(nil), s.fields...)
}

func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, fd := range s.fields {
		names[i] = fd.Name
	}
	return names
}

// FieldIndex resolves a field name to its index.
func (s *Schema) FieldIndex(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// RecordLength is the on-disk length of one record: the status byte plus
// the sum of the field lengths.
func (s *Schema) RecordLength() int {
	return s.recordLen
}

// HeaderLength is the on-disk header length: the 32-byte prologue, one
// 32-byte descriptor per field and the terminator byte.
func (s *Schema) HeaderLength() int {
	return headerSize + descriptorSize*len(s.fields) + 1
}

// fieldOffset is the byte offset of field i within a record.
func (s *Schema) fieldOffset(i int) int {
	return s.offsets[i]
}

func (s *Schema) checkFieldIndex(i int) error {
	if i < 0 || i >= len(s.fields) {
		return errors.Wrapf(ErrRange, "field index %d out of range [0,%d)", i, len(s.fields))
	}
	return nil
}
