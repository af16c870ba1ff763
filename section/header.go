// Package section defines the fixed sections of an APXTLM file.
//
// The only fixed section is the 44-byte header at offset 0; everything
// after it is the record stream emitted by the stream encoder.
package section

import (
	"bytes"
	"time"

	"github.com/andewhash/apx-repack/endian"
	"github.com/andewhash/apx-repack/errs"
)

// Header geometry.
const (
	HeaderSize = 44 // fixed header size in bytes

	magicOffset     = 0  // 6 ASCII bytes "APXTLM"
	versionOffset   = 16 // u16 LE format version
	payloadOffset   = 18 // u16 LE offset of the record stream (= HeaderSize)
	timestampOffset = 32 // u64 LE start timestamp, ms since Unix epoch
	utcOffset       = 40 // i32 LE UTC offset, seconds
)

// FormatVersion is the current APXTLM format version.
const FormatVersion = 1

// Magic is the 6-byte ASCII signature at offset 0.
var Magic = [6]byte{'A', 'P', 'X', 'T', 'L', 'M'}

// Header represents the fixed-size header at the start of an APXTLM file.
//
// The zero-padded gaps at offsets 6-15 and 20-31 are reserved and always
// written as zeros.
type Header struct {
	// Version is the format version, currently FormatVersion.
	Version uint16
	// StartTimestamp is the recording start time in milliseconds since
	// the Unix epoch. Timestamp markers in the stream are interpreted
	// relative to it.
	StartTimestamp uint64
	// UTCOffset is the recording's UTC offset in seconds.
	UTCOffset int32
}

// NewHeader creates a Header for a recording starting at startTime with
// the given UTC offset in seconds.
func NewHeader(startTime time.Time, utcOffsetSec int32) *Header {
	return &Header{
		Version:        FormatVersion,
		StartTimestamp: uint64(startTime.UnixMilli()), //nolint:gosec
		UTCOffset:      utcOffsetSec,
	}
}

// Bytes serializes the header into a 44-byte slice.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)

	engine := endian.GetLittleEndianEngine()

	copy(b[magicOffset:], Magic[:])
	engine.PutUint16(b[versionOffset:versionOffset+2], h.Version)
	engine.PutUint16(b[payloadOffset:payloadOffset+2], HeaderSize)
	engine.PutUint64(b[timestampOffset:timestampOffset+8], h.StartTimestamp)
	engine.PutUint32(b[utcOffset:utcOffset+4], uint32(h.UTCOffset)) //nolint:gosec

	return b
}

// Parse parses the header from a byte slice.
//
// Parameters:
//   - data: Byte slice containing the header (must be exactly 44 bytes)
//
// Returns:
//   - error: ErrInvalidHeaderSize or ErrInvalidMagic
func (h *Header) Parse(data []byte) error {
	if len(data) != HeaderSize {
		return errs.ErrInvalidHeaderSize
	}
	if !bytes.Equal(data[magicOffset:magicOffset+6], Magic[:]) {
		return errs.ErrInvalidMagic
	}

	engine := endian.GetLittleEndianEngine()

	h.Version = engine.Uint16(data[versionOffset : versionOffset+2])
	h.StartTimestamp = engine.Uint64(data[timestampOffset : timestampOffset+8])
	h.UTCOffset = int32(engine.Uint32(data[utcOffset : utcOffset+4])) //nolint:gosec

	return nil
}

// StartTimeAsTime returns the start timestamp as a time.Time object.
func (h *Header) StartTimeAsTime() time.Time {
	return time.UnixMilli(int64(h.StartTimestamp)) //nolint:gosec
}
