package godbf

import (
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// languageDriver ties a one-byte codepage id to a text encoding and the
// decimal-separator character numeric fields are written with.
type languageDriver struct {
	name   string
	enc    encoding.Encoding
	decSep byte
}

// defaultLanguageDriver is used by Create when no id is given.
const defaultLanguageDriver byte = 0x03

var languageDrivers = map[byte]languageDriver{
	0x00: {"DOS USA (unset)", charmap.CodePage437, '.'},
	0x01: {"DOS USA", charmap.CodePage437, '.'},
	0x02: {"DOS Multilingual", charmap.CodePage850, ','},
	0x03: {"Windows ANSI", charmap.Windows1252, '.'},
	0x04: {"Standard Macintosh", charmap.Macintosh, '.'},
	0x64: {"EE MS-DOS", charmap.CodePage852, ','},
	0x65: {"Russian MS-DOS", charmap.CodePage866, ' '},
	0x66: {"Nordic MS-DOS", charmap.CodePage865, ','},
	0x78: {"Taiwan Big5", traditionalchinese.Big5, '.'},
	0x79: {"Hangul Windows", korean.EUCKR, '.'},
	0x7A: {"PRC GBK", simplifiedchinese.GBK, '.'},
	0x7B: {"Japanese Shift-JIS", japanese.ShiftJIS, '.'},
	0xC8: {"Windows EE", charmap.Windows1250, ','},
	0xC9: {"Russian Windows", charmap.Windows1251, ','},
	0xCA: {"Turkish Windows", charmap.Windows1254, '.'},
	0xCB: {"Greek Windows", charmap.Windows1253, '.'},
}

func lookupLanguageDriver(id byte) (languageDriver, error) {
	driver, ok := languageDrivers[id]
	if !ok {
		return languageDriver{}, errors.Wrapf(ErrFormat, "unrecognized language driver id 0x%02x", id)
	}
	return driver, nil
}
