package compress

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/andewhash/apx-repack/endian"
	"github.com/andewhash/apx-repack/internal/pool"
)

// PrefixSize is the size of the big-endian original-length prefix.
const PrefixSize = 4

// compressionLevel is fixed so the envelope stays byte-for-byte
// reproducible across runs. Level 6 matches zlib's default.
const compressionLevel = 6

// Compressor produces the qCompress envelope for a payload.
type Compressor interface {
	// Compress compresses the input data and returns the complete
	// envelope: length prefix plus deflate stream.
	//
	// Memory management:
	//   - Returned slice is newly allocated and owned by the caller
	//   - Input slice is not modified
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores the original payload from a qCompress envelope.
type Decompressor interface {
	// Decompress validates the envelope and returns the original data.
	// The stored length prefix must match the inflated size exactly.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

// zlibWriterPool pools zlib.Writer instances for reuse.
// The writer keeps sizable deflate state that benefits from reuse.
var zlibWriterPool = sync.Pool{
	New: func() any {
		zw, err := zlib.NewWriterLevel(io.Discard, compressionLevel)
		if err != nil {
			// compressionLevel is a valid constant; this cannot happen.
			panic(err)
		}
		return zw
	},
}

// QCompressor implements the qCompress envelope.
type QCompressor struct{}

var _ Codec = (*QCompressor)(nil)

// NewQCompressor creates a new qCompress codec.
func NewQCompressor() QCompressor {
	return QCompressor{}
}

// Compress compresses data into a qCompress envelope.
//
// Parameters:
//   - data: Input payload (may be empty; an empty payload still yields a
//     valid envelope with a zero length prefix)
//
// Returns:
//   - []byte: Envelope bytes (length prefix + zlib stream)
//   - error: Compression error if any
func (c QCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) > math.MaxUint32 {
		return nil, fmt.Errorf("payload too large for qCompress envelope: %d bytes", len(data))
	}

	buf := pool.GetPayloadBuffer()
	defer pool.PutPayloadBuffer(buf)

	engine := endian.GetBigEndianEngine()
	buf.B = engine.AppendUint32(buf.B, uint32(len(data)))

	zw, _ := zlibWriterPool.Get().(*zlib.Writer)
	defer zlibWriterPool.Put(zw)

	zw.Reset(buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return out, nil
}

// Decompress validates and unwraps a qCompress envelope.
//
// Parameters:
//   - data: Envelope bytes produced by Compress
//
// Returns:
//   - []byte: Original payload (nil for an empty payload)
//   - error: Truncated envelope, zlib errors, or length prefix mismatch
func (c QCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < PrefixSize {
		return nil, fmt.Errorf("qCompress envelope truncated: %d bytes", len(data))
	}

	engine := endian.GetBigEndianEngine()
	want := engine.Uint32(data[:PrefixSize])

	zr, err := zlib.NewReader(bytes.NewReader(data[PrefixSize:]))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out := make([]byte, 0, want)
	outBuf := bytes.NewBuffer(out)
	if _, err := io.Copy(outBuf, zr); err != nil {
		return nil, err
	}

	if uint32(outBuf.Len()) != want { //nolint:gosec
		return nil, fmt.Errorf("qCompress length mismatch: prefix %d, inflated %d", want, outBuf.Len())
	}
	if outBuf.Len() == 0 {
		return nil, nil
	}

	return outBuf.Bytes(), nil
}
