package godbf

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// Header is the fixed 32-byte prologue of a dbf file.
type Header struct {
	Version        Version
	Year           uint8 // last update, offset from 1900
	Month          uint8
	Day            uint8
	RecordCount    uint32
	HeaderLen      uint16 // position of the first record
	RecordLen      uint16 // length of one record, including the status byte
	InTransaction  byte
	Encrypted      byte
	MdxFlag        byte
	LanguageDriver byte
}

// Header byte layout. All integers little-endian.
const (
	hdrOffVersion        = 0
	hdrOffYear           = 1
	hdrOffMonth          = 2
	hdrOffDay            = 3
	hdrOffRecordCount    = 4
	hdrOffHeaderLen      = 8
	hdrOffRecordLen      = 10
	hdrOffInTransaction  = 14
	hdrOffEncrypted      = 15
	hdrOffMdxFlag        = 28
	hdrOffLanguageDriver = 29
)

func unpackHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, errors.Wrapf(ErrFormat, "header truncated to %d bytes", len(b))
	}
	return Header{
		Version:        Version(b[hdrOffVersion]),
		Year:           b[hdrOffYear],
		Month:          b[hdrOffMonth],
		Day:            b[hdrOffDay],
		RecordCount:    binary.LittleEndian.Uint32(b[hdrOffRecordCount:]),
		HeaderLen:      binary.LittleEndian.Uint16(b[hdrOffHeaderLen:]),
		RecordLen:      binary.LittleEndian.Uint16(b[hdrOffRecordLen:]),
		InTransaction:  b[hdrOffInTransaction],
		Encrypted:      b[hdrOffEncrypted],
		MdxFlag:        b[hdrOffMdxFlag],
		LanguageDriver: b[hdrOffLanguageDriver],
	}, nil
}

func (h Header) pack(b []byte) {
	b[hdrOffVersion] = byte(h.Version)
	b[hdrOffYear] = h.Year
	b[hdrOffMonth] = h.Month
	b[hdrOffDay] = h.Day
	binary.LittleEndian.PutUint32(b[hdrOffRecordCount:], h.RecordCount)
	binary.LittleEndian.PutUint16(b[hdrOffHeaderLen:], h.HeaderLen)
	binary.LittleEndian.PutUint16(b[hdrOffRecordLen:], h.RecordLen)
	b[hdrOffInTransaction] = h.InTransaction
	b[hdrOffEncrypted] = h.Encrypted
	b[hdrOffMdxFlag] = h.MdxFlag
	b[hdrOffLanguageDriver] = h.LanguageDriver
}

// FieldCount derives the number of field descriptors from the header alone.
func (h Header) FieldCount() int {
	return (int(h.HeaderLen) - headerSize - 1) / descriptorSize
}

// Modified returns the last-update date. The year byte is stored as an
// offset from 1900.
func (h Header) Modified() time.Time {
	return time.Date(1900+int(h.Year), time.Month(h.Month), int(h.Day), 0, 0, 0, 0, time.UTC)
}

// FileSize is the expected total file size computed from the header,
// including the trailing end-of-file marker.
func (h Header) FileSize() int64 {
	return int64(h.HeaderLen) + int64(h.RecordCount)*int64(h.RecordLen) + 1
}

func (h *Header) setModified(t time.Time) {
	year, month, day := t.Date()
	h.Year = uint8(year - 1900)
	h.Month = uint8(month)
	h.Day = uint8(day)
}
