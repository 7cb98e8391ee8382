package godbf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MemoFile is the companion .dbt block file holding variable-length text for
// memo/binary/ole fields. Blocks are append-only and never reused; values
// are UTF-8, terminated by two end-of-field bytes and zero-padded to the
// next block boundary.
type MemoFile struct {
	s         stream
	blockSize uint16
	nextFree  uint32
}

const (
	memoHeaderSize       = 6
	defaultMemoBlockSize = 512
)

// Memo header byte layout.
const (
	memoOffBlockSize = 0 // uint16
	memoOffNextFree  = 2 // uint32
)

func openMemo(s stream) (*MemoFile, error) {
	buf := make([]byte, memoHeaderSize)
	if _, err := s.ReadAt(buf, 0); err != nil {
		return nil, errors.Wrap(ErrFormat, "memo header unreadable")
	}
	m := &MemoFile{
		s:         s,
		blockSize: binary.LittleEndian.Uint16(buf[memoOffBlockSize:]),
		nextFree:  binary.LittleEndian.Uint32(buf[memoOffNextFree:]),
	}
	if m.blockSize < memoHeaderSize || m.nextFree == 0 {
		return nil, errors.Wrapf(ErrFormat, "bad memo header: block size %d, next free %d", m.blockSize, m.nextFree)
	}
	log.Debugf("opened memo file: block size %d, next free block %d", m.blockSize, m.nextFree)
	return m, nil
}

func createMemo(s stream, blockSize uint16) (*MemoFile, error) {
	if blockSize == 0 {
		blockSize = defaultMemoBlockSize
	}
	if blockSize < memoHeaderSize {
		return nil, errors.Wrapf(ErrFormat, "memo block size %d too small", blockSize)
	}
	m := &MemoFile{s: s, blockSize: blockSize, nextFree: 1}
	// header block occupies block zero
	if err := s.Truncate(int64(blockSize)); err != nil {
		return nil, errors.Wrap(err, "failed to size memo header block")
	}
	if err := m.writeHeader(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MemoFile) writeHeader() error {
	buf := make([]byte, memoHeaderSize)
	binary.LittleEndian.PutUint16(buf[memoOffBlockSize:], m.blockSize)
	binary.LittleEndian.PutUint32(buf[memoOffNextFree:], m.nextFree)
	_, err := m.s.WriteAt(buf, 0)
	return errors.Wrap(err, "failed to write memo header")
}

// BlockSize returns the allocation unit of the memo file.
func (m *MemoFile) BlockSize() uint16 {
	return m.blockSize
}

// Read returns the text starting at block index, scanning forward through
// as many blocks as needed until the end-of-field marker.
func (m *MemoFile) Read(index uint32) (string, error) {
	if index == 0 || index >= m.nextFree {
		return "", errors.Wrapf(ErrRange, "memo block %d out of range [1,%d)", index, m.nextFree)
	}

	var out []byte
	buf := make([]byte, m.blockSize)
	pos := int64(index) * int64(m.blockSize)
	var carry byte // last byte of the previous chunk, for a split marker
	for {
		n, err := m.s.ReadAt(buf, pos)
		if n == 0 {
			if err == io.EOF {
				return "", errors.Wrap(ErrFormat, "memo value missing end-of-field marker")
			}
			return "", errors.Wrap(err, "failed to read memo block")
		}
		chunk := buf[:n]
		if carry == fileTerminator && chunk[0] == fileTerminator {
			return string(out[:len(out)-1]), nil
		}
		for i := 0; i+1 < len(chunk); i++ {
			if chunk[i] == fileTerminator && chunk[i+1] == fileTerminator {
				return string(append(out, chunk[:i]...)), nil
			}
		}
		out = append(out, chunk...)
		carry = chunk[len(chunk)-1]
		pos += int64(n)
		if err == io.EOF {
			return "", errors.Wrap(ErrFormat, "memo value missing end-of-field marker")
		}
	}
}

// Append writes text at the current free block and returns the index of
// the first block used. The free-block pointer advances past the padded
// value; blocks are never reclaimed.
func (m *MemoFile) Append(text string) (uint32, error) {
	data := append([]byte(text), fileTerminator, fileTerminator)
	blocks := (len(data) + int(m.blockSize) - 1) / int(m.blockSize)
	padded := make([]byte, blocks*int(m.blockSize))
	copy(padded, data)

	index := m.nextFree
	if _, err := m.s.WriteAt(padded, int64(index)*int64(m.blockSize)); err != nil {
		return 0, errors.Wrap(err, "failed to write memo blocks")
	}
	m.nextFree += uint32(blocks)
	if err := m.writeHeader(); err != nil {
		return 0, err
	}
	log.Debugf("appended %d memo block(s) at index %d", blocks, index)
	return index, nil
}

func (m *MemoFile) Close() error {
	return m.s.Close()
}
