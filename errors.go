package godbf

import (
	"github.com/pkg/errors"
)

var (
	// ErrFormat is returned when the bytes are not a dbf file this engine
	// understands: missing header terminator, unknown field type tag,
	// unknown codepage id.
	ErrFormat = errors.New("invalid dbf format")

	// ErrConsistency is returned at open time when the stored header or
	// record length disagrees with the length computed from the parsed
	// schema.
	ErrConsistency = errors.New("header inconsistent with schema")

	// ErrUnsupported is returned for recognized but unsupported layout
	// variants, e.g. a memo sub-format other than dBase III.
	ErrUnsupported = errors.New("unsupported dbf variant")

	// ErrRange is returned when a record/field index or a stream edit
	// offset is out of bounds.
	ErrRange = errors.New("index out of range")

	// ErrTypeMismatch is returned when a value's shape does not match the
	// field's declared type. No bytes are mutated.
	ErrTypeMismatch = errors.New("value does not match field type")

	// ErrNoMemo is returned when writing a memo field on a table that has
	// no memo file attached.
	ErrNoMemo = errors.New("no memo file attached")

	// ErrFieldNotFound is returned by name-based field lookups.
	ErrFieldNotFound = errors.New("field name not exists")

	// ErrClosed is returned by operations on a closed table.
	ErrClosed = errors.New("table is closed")
)
