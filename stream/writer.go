// Package stream implements the APXTLM record stream: a buffered
// little-endian primitive writer and the record encoder driven by the
// XML ingest state machines.
package stream

import (
	"bufio"
	"io"
	"math"

	"github.com/andewhash/apx-repack/encoding"
	"github.com/andewhash/apx-repack/endian"
)

// writerBufferSize is the default output buffer size.
const writerBufferSize = 100 * 1024

// Writer is a thin buffered wrapper over an output sink exposing the
// primitive writes of the APXTLM wire format: little-endian integers
// and floats, one big-endian u32 (used only inside the qCompress
// envelope prefix), C-strings and inline literals.
//
// Any I/O error on the sink is fatal and surfaced to the caller;
// the Writer performs no recovery.
type Writer struct {
	w       *bufio.Writer
	engine  endian.EndianEngine
	scratch [8]byte
	written int64
}

// NewWriter creates a Writer over w with a 100 KiB buffer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:      bufio.NewWriterSize(w, writerBufferSize),
		engine: endian.GetLittleEndianEngine(),
	}
}

// BytesWritten returns the number of bytes emitted so far, including
// bytes still sitting in the buffer.
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// Flush flushes buffered bytes to the underlying sink.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Write writes p verbatim.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written += int64(n)

	return n, err
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(c byte) error {
	if err := w.w.WriteByte(c); err != nil {
		return err
	}
	w.written++

	return nil
}

// WriteU8 writes v as one byte.
func (w *Writer) WriteU8(v uint8) error {
	return w.WriteByte(v)
}

// WriteU16 writes v as a little-endian u16.
func (w *Writer) WriteU16(v uint16) error {
	w.engine.PutUint16(w.scratch[:2], v)
	_, err := w.Write(w.scratch[:2])

	return err
}

// WriteU32 writes v as a little-endian u32.
func (w *Writer) WriteU32(v uint32) error {
	w.engine.PutUint32(w.scratch[:4], v)
	_, err := w.Write(w.scratch[:4])

	return err
}

// WriteU64 writes v as a little-endian u64.
func (w *Writer) WriteU64(v uint64) error {
	w.engine.PutUint64(w.scratch[:8], v)
	_, err := w.Write(w.scratch[:8])

	return err
}

// WriteI32 writes v as a little-endian i32.
func (w *Writer) WriteI32(v int32) error {
	return w.WriteU32(uint32(v)) //nolint:gosec
}

// WriteF32 writes v as a little-endian IEEE 754 single.
func (w *Writer) WriteF32(v float32) error {
	return w.WriteU32(math.Float32bits(v))
}

// WriteU32BE writes v as a big-endian u32.
func (w *Writer) WriteU32BE(v uint32) error {
	endian.GetBigEndianEngine().PutUint32(w.scratch[:4], v)
	_, err := w.Write(w.scratch[:4])

	return err
}

// WriteCString writes s as UTF-8 bytes followed by a NUL terminator.
func (w *Writer) WriteCString(s string) error {
	_, err := w.Write(encoding.AppendCString(nil, s))

	return err
}

// WriteLiteral writes an inline string literal: the sentinel prefix
// byte followed by a C-string.
func (w *Writer) WriteLiteral(s string) error {
	_, err := w.Write(encoding.AppendLiteral(nil, s))

	return err
}
