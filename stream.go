package godbf

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// stream is the seekable byte store the engine operates on. *os.File
// satisfies it through fileStream; memStream backs in-memory tables.
// All access is offset-based, no implicit position is shared across calls.
type stream interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Truncate(size int64) error
	Size() (int64, error)
}

type fileStream struct {
	*os.File
}

func (f *fileStream) Size() (int64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

// memStream keeps the whole store in one byte slice. Writes past the end
// extend it, zero-filling any gap, matching *os.File semantics.
type memStream struct {
	buf []byte
}

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) WriteAt(p []byte, off int64) (int, error) {
	if grow := off + int64(len(p)) - int64(len(m.buf)); grow > 0 {
		m.buf = append(m.buf, make([]byte, grow)...)
	}
	return copy(m.buf[off:], p), nil
}

func (m *memStream) Truncate(size int64) error {
	if size <= int64(len(m.buf)) {
		m.buf = m.buf[:size]
		return nil
	}
	m.buf = append(m.buf, make([]byte, size-int64(len(m.buf)))...)
	return nil
}

func (m *memStream) Size() (int64, error) {
	return int64(len(m.buf)), nil
}

func (m *memStream) Close() error {
	return nil
}

// editChunkSize bounds the scratch buffer used when shifting byte spans, so
// edits never need the whole moved region in memory at once.
const editChunkSize = 1024

// insertRange shifts every byte at or after offset right by len(data) and
// writes data at offset. The copy walks backward from the end in bounded
// chunks so a read never clobbers bytes not yet relocated.
func insertRange(s stream, offset int64, data []byte) error {
	size, err := s.Size()
	if err != nil {
		return err
	}
	if offset < 0 || offset > size {
		return errors.Wrapf(ErrRange, "insert at %d past stream size %d", offset, size)
	}
	if len(data) == 0 {
		return nil
	}

	shift := int64(len(data))
	buf := make([]byte, editChunkSize)
	end := size
	for end > offset {
		chunk := int64(editChunkSize)
		if end-offset < chunk {
			chunk = end - offset
		}
		start := end - chunk
		if _, err := s.ReadAt(buf[:chunk], start); err != nil {
			return errors.Wrap(err, "failed to read span chunk")
		}
		if _, err := s.WriteAt(buf[:chunk], start+shift); err != nil {
			return errors.Wrap(err, "failed to relocate span chunk")
		}
		end = start
	}

	_, err = s.WriteAt(data, offset)
	return errors.Wrap(err, "failed to write inserted span")
}

// removeRange deletes length bytes at offset by copying everything after
// the span leftward in bounded chunks and truncating the stream. A span
// entirely past the end is a no-op; a span that only partially fits fails.
func removeRange(s stream, offset, length int64) error {
	size, err := s.Size()
	if err != nil {
		return err
	}
	if offset < 0 || length < 0 {
		return errors.Wrapf(ErrRange, "negative remove range %d+%d", offset, length)
	}
	if offset >= size {
		return nil
	}
	if offset+length > size {
		return errors.Wrapf(ErrRange, "remove range %d+%d past stream size %d", offset, length, size)
	}
	if length == 0 {
		return nil
	}

	buf := make([]byte, editChunkSize)
	src := offset + length
	dst := offset
	for src < size {
		chunk := int64(editChunkSize)
		if size-src < chunk {
			chunk = size - src
		}
		if _, err := s.ReadAt(buf[:chunk], src); err != nil {
			return errors.Wrap(err, "failed to read span chunk")
		}
		if _, err := s.WriteAt(buf[:chunk], dst); err != nil {
			return errors.Wrap(err, "failed to relocate span chunk")
		}
		src += chunk
		dst += chunk
	}

	return errors.Wrap(s.Truncate(size-length), "failed to truncate stream")
}
