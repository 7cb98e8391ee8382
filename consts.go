package godbf

/*
	DBF file structure:
	file header          32 bytes
	field descriptors    32 bytes each
	header terminator    1 byte (0x0D)
	record area          one status byte plus the fixed-width field data per record
	file terminator      1 byte (0x1A)
*/

const (
	space            byte = 0x20
	null             byte = 0x00
	headerTerminator byte = 0x0D
	fileTerminator   byte = 0x1A
	validFlag        byte = 0x20
	deletedFlag      byte = 0x2A
)

const (
	headerSize     = 32
	descriptorSize = 32
	maxFieldName   = 11
)

// Version is the first byte of a dbf file. The low bits carry the dialect,
// the high bits flag companion files.
type Version byte

const (
	VersionFoxBase      Version = 0x02
	VersionDbase3       Version = 0x03
	VersionVisualFoxPro Version = 0x30
	VersionDbase4SQL    Version = 0x43
	VersionDbase3Memo   Version = 0x83
	VersionDbase4Memo   Version = 0x8B
	VersionFoxPro2Memo  Version = 0xF5
)

const dbtMemoMask = 0x80

// Dialect strips the companion-file flags, leaving the base format bits.
func (v Version) Dialect() byte {
	return byte(v) &^ dbtMemoMask
}

// HasDbtMemo reports whether the table expects a .dbt companion file.
func (v Version) HasDbtMemo() bool {
	return byte(v)&dbtMemoMask != 0
}

// FieldType is the one-byte ASCII type tag of a field descriptor.
type FieldType byte

const (
	Character     FieldType = 'C'
	Numeric       FieldType = 'N'
	Float         FieldType = 'F'
	Int32         FieldType = 'I'
	AutoIncrement FieldType = '+'
	Double        FieldType = 'O'
	Currency      FieldType = 'Y'
	Date          FieldType = 'D'
	Timestamp     FieldType = '@'
	DateTime      FieldType = 'T' // same wire layout as Timestamp
	Logical       FieldType = 'L'
	Memo          FieldType = 'M'
	Binary        FieldType = 'B'
	Ole           FieldType = 'G'
	NullFlags     FieldType = '0'
)

func (t FieldType) String() string {
	return string([]byte{byte(t)})
}
