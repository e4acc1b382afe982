package codec

import (
	"encoding/binary"

	"mavibot/pkg/errs"
)

// writer accumulates a big-endian, length-prefixed byte stream.
type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{buf: make([]byte, 0, 64)} }

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) putByte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putInt64(v int64) { w.putUint64(uint64(v)) }

// putBytes writes a 4-byte length prefix followed by raw bytes. nil writes
// length -1 (null); an empty non-nil slice writes length 0.
func (w *writer) putBytes(b []byte) {
	if b == nil {
		w.putUint32(0xFFFFFFFF) // int32(-1) as raw bits
		return
	}
	w.putUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// putString writes s as length-prefixed UTF-8.
func (w *writer) putString(s string) { w.putBytes([]byte(s)) }

// reader consumes a big-endian, length-prefixed byte stream.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return errs.Corruption
	}
	return nil
}

func (r *reader) byte_() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) int64() (int64, error) {
	v, err := r.uint64()
	return int64(v), err
}

// bytes reads a length-prefixed byte string; -1 length decodes to nil.
func (r *reader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	length := int32(n)
	if length < 0 {
		return nil, nil
	}
	if err := r.need(int(length)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, r.buf[r.pos:r.pos+int(length)])
	r.pos += int(length)
	return out, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
