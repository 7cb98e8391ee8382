package godbf

import (
	"github.com/axgle/mahonia"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
)

// textCodec converts between the on-disk legacy encoding and UTF-8 strings.
type textCodec interface {
	Decode(b []byte) (string, error)
	Encode(s string) ([]byte, error)
}

// charmapCodec is backed by a golang.org/x/text encoding, selected from the
// language-driver table.
type charmapCodec struct {
	enc encoding.Encoding
}

func (c *charmapCodec) Decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode text")
	}
	return string(out), nil
}

func (c *charmapCodec) Encode(s string) ([]byte, error) {
	out, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode text")
	}
	return out, nil
}

// mahoniaCodec is used when the caller overrides the file's codepage with a
// charset name, e.g. "gbk" or "utf-8".
type mahoniaCodec struct {
	decoder mahonia.Decoder
	encoder mahonia.Encoder
}

func newMahoniaCodec(charset string) (*mahoniaCodec, error) {
	decoder := mahonia.NewDecoder(charset)
	encoder := mahonia.NewEncoder(charset)
	if decoder == nil || encoder == nil {
		return nil, errors.Wrapf(ErrUnsupported, "unknown charset %q", charset)
	}
	return &mahoniaCodec{decoder: decoder, encoder: encoder}, nil
}

func (c *mahoniaCodec) Decode(b []byte) (string, error) {
	return c.decoder.ConvertString(string(b)), nil
}

func (c *mahoniaCodec) Encode(s string) ([]byte, error) {
	return []byte(c.encoder.ConvertString(s)), nil
}
