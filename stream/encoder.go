package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/andewhash/apx-repack/compress"
	"github.com/andewhash/apx-repack/encoding"
	"github.com/andewhash/apx-repack/errs"
	"github.com/andewhash/apx-repack/format"
	"github.com/andewhash/apx-repack/internal/options"
	"github.com/andewhash/apx-repack/internal/pool"
	"github.com/andewhash/apx-repack/internal/registry"
	"github.com/andewhash/apx-repack/section"
)

// noLastIndex marks an empty last-index cache (start of stream or right
// after a timestamp marker), forcing the next sample into long framing.
const noLastIndex = -1

// EventSchema is a declared event type: a name plus the ordered key
// list that event instance values run parallel to.
type EventSchema struct {
	Name string
	Keys []string
}

// Encoder emits the APXTLM record stream: a fixed header, the info
// blob, lazily declared field and event dictionaries, and a
// time-ordered interleaving of timestamp markers, numeric samples,
// events and embedded blobs, terminated by a stop byte.
//
// The Encoder owns its output sink exclusively for the lifetime of a
// repack. It is NOT safe for concurrent use and is NOT reusable after
// Finish.
type Encoder struct {
	w      *Writer
	header *section.Header
	codec  compress.QCompressor

	fields  *registry.Registry
	events  *registry.Registry
	schemas []EventSchema

	// Per-direction value caches: field index → last emitted value
	// bits. Suppression in one direction never affects the other.
	downCache map[int]uint64
	upCache   map[int]uint64

	lastIndex int // last field index within the current timestamp window
	lastTs    uint32
	hasTs     bool

	infoWritten bool
	finished    bool
}

// EncoderOption configures an Encoder at construction time.
type EncoderOption = options.Option[*Encoder]

// WithFormatVersion overrides the format version stamped in the header.
func WithFormatVersion(v uint16) EncoderOption {
	return options.NoError(func(e *Encoder) {
		e.header.Version = v
	})
}

// NewEncoder creates an Encoder over w and writes the 44-byte header.
//
// Parameters:
//   - w: Output sink; owned by the encoder until Finish
//   - startTime: Recording start time, stored as ms since the Unix epoch
//   - utcOffsetSec: Recording UTC offset in seconds
//   - opts: Optional configuration
//
// Returns:
//   - *Encoder: Encoder ready for the info record
//   - error: Option or sink errors
func NewEncoder(w io.Writer, startTime time.Time, utcOffsetSec int32, opts ...EncoderOption) (*Encoder, error) {
	e := &Encoder{
		w:         NewWriter(w),
		header:    section.NewHeader(startTime, utcOffsetSec),
		codec:     compress.NewQCompressor(),
		fields:    registry.New(format.MaxFieldCount),
		events:    registry.New(format.MaxEventCount),
		downCache: make(map[int]uint64),
		upCache:   make(map[int]uint64),
		lastIndex: noLastIndex,
	}

	if err := options.Apply(e, opts...); err != nil {
		return nil, err
	}

	if _, err := e.w.Write(e.header.Bytes()); err != nil {
		return nil, err
	}

	return e, nil
}

// Header returns the header written at offset 0.
func (e *Encoder) Header() *section.Header {
	return e.header
}

// FieldCount returns the number of declared fields.
func (e *Encoder) FieldCount() int {
	return e.fields.Len()
}

// EventCount returns the number of declared event schemas.
func (e *Encoder) EventCount() int {
	return e.events.Len()
}

// FieldIndex returns the index of a declared field name, or -1.
func (e *Encoder) FieldIndex(name string) int {
	return e.fields.Lookup(name)
}

// EventIndex returns the index of a declared event schema name, or -1.
func (e *Encoder) EventIndex(name string) int {
	return e.events.Lookup(name)
}

// EventSchemaAt returns the schema declared at index.
func (e *Encoder) EventSchemaAt(index int) (EventSchema, bool) {
	if index < 0 || index >= len(e.schemas) {
		return EventSchema{}, false
	}

	return e.schemas[index], true
}

// WriteInfo emits the info record: a jso blob under the literal name
// "info", written exactly once immediately after the header.
//
// The payload always carries utc_offset (seconds) and timestamp (ms);
// when the supplied object omits either, the header value is
// substituted.
func (e *Encoder) WriteInfo(info map[string]any) error {
	if e.infoWritten {
		return errs.ErrInfoWritten
	}

	payload := make(map[string]any, len(info)+2)
	for k, v := range info {
		payload[k] = v
	}
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = e.header.StartTimestamp
	}
	if _, ok := payload["utc_offset"]; !ok {
		payload["utc_offset"] = e.header.UTCOffset
	}

	if err := e.WriteJSON("info", payload); err != nil {
		return err
	}
	e.infoWritten = true

	return nil
}

// AddField declares a numeric field and emits its declaration record.
// The assigned index is the declaration order, starting at 0.
//
// Parameters:
//   - name: Field name, non-empty and unique within the file
//   - aux: Optional auxiliary strings (title, units, ...), at most 255
//
// Returns:
//   - int: Assigned field index
//   - error: ErrInvalidName, ErrDuplicateField, or ErrFieldOverflow
func (e *Encoder) AddField(name string, aux ...string) (int, error) {
	if e.finished {
		return -1, errs.ErrEncoderFinished
	}
	if name == "" {
		return -1, errs.ErrInvalidName
	}
	if e.fields.Full() {
		return -1, fmt.Errorf("%w: max %d fields", errs.ErrFieldOverflow, format.MaxFieldCount)
	}
	if len(aux) > math.MaxUint8 {
		return -1, fmt.Errorf("field %q: too many auxiliary strings: %d", name, len(aux))
	}

	index, added := e.fields.Add(name)
	if !added {
		return -1, fmt.Errorf("%w: %q", errs.ErrDuplicateField, name)
	}

	buf := pool.GetRecordBuffer()
	defer pool.PutRecordBuffer(buf)

	buf.B = append(buf.B, format.ExtField.Opcode())
	buf.B = encoding.AppendCString(buf.B, name)
	buf.B = append(buf.B, uint8(len(aux)))
	for _, s := range aux {
		buf.B = encoding.AppendCString(buf.B, s)
	}

	if _, err := e.w.Write(buf.B); err != nil {
		return -1, err
	}

	return index, nil
}

// AddEvent declares an event schema and emits its declaration record.
//
// Parameters:
//   - name: Event name, unique within the file
//   - keys: Ordered key list; instance values run parallel to it
//
// Returns:
//   - int: Assigned schema index (0-255)
//   - error: ErrInvalidName, ErrDuplicateEvent, or ErrEventOverflow
func (e *Encoder) AddEvent(name string, keys []string) (int, error) {
	if e.finished {
		return -1, errs.ErrEncoderFinished
	}
	if name == "" {
		return -1, errs.ErrInvalidName
	}
	if e.events.Full() {
		return -1, fmt.Errorf("%w: max %d event schemas", errs.ErrEventOverflow, format.MaxEventCount)
	}
	if len(keys) > math.MaxUint8 {
		return -1, fmt.Errorf("event %q: too many keys: %d", name, len(keys))
	}

	index, added := e.events.Add(name)
	if !added {
		return -1, fmt.Errorf("%w: %q", errs.ErrDuplicateEvent, name)
	}
	e.schemas = append(e.schemas, EventSchema{Name: name, Keys: keys})

	buf := pool.GetRecordBuffer()
	defer pool.PutRecordBuffer(buf)

	buf.B = append(buf.B, format.ExtEvtid.Opcode())
	buf.B = encoding.AppendCString(buf.B, name)
	buf.B = append(buf.B, uint8(len(keys)))
	for _, k := range keys {
		buf.B = encoding.AppendCString(buf.B, k)
	}

	if _, err := e.w.Write(buf.B); err != nil {
		return -1, err
	}

	return index, nil
}

// WriteTimestamp emits a timestamp marker and resets the last-index
// cache, forcing the next sample into long framing.
//
// Consecutive markers with equal values are suppressed. The marker is
// written exactly as provided; no arithmetic is performed against the
// 64-bit header start time.
func (e *Encoder) WriteTimestamp(ms uint32) error {
	if e.finished {
		return errs.ErrEncoderFinished
	}
	if e.hasTs && ms == e.lastTs {
		return nil
	}

	if err := e.w.WriteByte(format.ExtTs.Opcode()); err != nil {
		return err
	}
	if err := e.w.WriteU32(ms); err != nil {
		return err
	}

	e.lastTs = ms
	e.hasTs = true
	e.lastIndex = noLastIndex

	return nil
}

// nanBits reports whether bits is any NaN pattern. The value caches
// treat all NaNs as equal, matching the narrowing predicate.
func nanBits(bits uint64) bool {
	return math.IsNaN(math.Float64frombits(bits))
}

// WriteSample emits one numeric sample for a declared field.
//
// The sample is suppressed when the per-direction cache holds a
// bitwise-equal previous value (NaN equal to NaN, +0 distinct from
// -0). Uplink samples are preceded by a dir opcode, which does not
// consume a field index. The value is narrowed to f16 when it
// round-trips, otherwise emitted as f32.
//
// Parameters:
//   - index: Declared field index
//   - value: Numeric value
//   - uplink: Direction; false is downlink
//
// Returns:
//   - error: ErrUnknownField or sink errors
func (e *Encoder) WriteSample(index int, value float64, uplink bool) error {
	if e.finished {
		return errs.ErrEncoderFinished
	}
	if index < 0 || index >= e.fields.Len() {
		return fmt.Errorf("%w: %d (declared %d)", errs.ErrUnknownField, index, e.fields.Len())
	}

	cache := e.downCache
	if uplink {
		cache = e.upCache
	}

	bits := math.Float64bits(value)
	if prev, ok := cache[index]; ok {
		if prev == bits || (nanBits(prev) && nanBits(bits)) {
			return nil
		}
	}
	cache[index] = bits

	if uplink {
		if err := e.w.WriteByte(format.ExtDir.Opcode()); err != nil {
			return err
		}
	}

	v32 := float32(value)
	dspec := format.DSpecF32
	if encoding.Narrows(v32) {
		dspec = format.DSpecF16
	}

	delta := index - e.lastIndex - 1
	if e.lastIndex >= 0 && delta >= 0 && delta <= 7 {
		head := byte(format.Opt8Flag) | byte(delta)<<5 | byte(dspec)&0x0F
		if err := e.w.WriteByte(head); err != nil {
			return err
		}
	} else {
		head := byte(index&0x07)<<5 | byte(dspec)&0x0F
		if err := e.w.WriteByte(head); err != nil {
			return err
		}
		if err := e.w.WriteByte(byte(index >> 3)); err != nil {
			return err
		}
	}
	e.lastIndex = index

	if dspec == format.DSpecF16 {
		return e.w.WriteU16(encoding.Float32ToHalf(v32))
	}

	return e.w.WriteF32(v32)
}

// WriteEvent emits an event instance for a previously declared schema.
//
// Parameters:
//   - index: Schema index returned by AddEvent
//   - values: Values parallel to the schema key list
//
// Returns:
//   - error: ErrUnknownEvent, ErrValueCountMismatch, or sink errors
func (e *Encoder) WriteEvent(index int, values []string) error {
	if e.finished {
		return errs.ErrEncoderFinished
	}
	if index < 0 || index >= len(e.schemas) {
		return fmt.Errorf("%w: %d (declared %d)", errs.ErrUnknownEvent, index, len(e.schemas))
	}
	if len(values) != len(e.schemas[index].Keys) {
		return fmt.Errorf("%w: event %q wants %d values, got %d",
			errs.ErrValueCountMismatch, e.schemas[index].Name, len(e.schemas[index].Keys), len(values))
	}

	buf := pool.GetRecordBuffer()
	defer pool.PutRecordBuffer(buf)

	buf.B = append(buf.B, format.ExtEvt.Opcode(), uint8(index))
	for _, v := range values {
		buf.B = encoding.AppendLiteral(buf.B, v)
	}

	if _, err := e.w.Write(buf.B); err != nil {
		return err
	}

	return nil
}

// WriteJSON serializes obj and emits it as a jso record: the literal
// name, a u32 length, and the qCompressed JSON payload.
func (e *Encoder) WriteJSON(name string, obj any) error {
	if e.finished {
		return errs.ErrEncoderFinished
	}

	payload, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("jso %q: %w", name, err)
	}

	zipped, err := e.codec.Compress(payload)
	if err != nil {
		return fmt.Errorf("jso %q: %w", name, err)
	}

	if err := e.w.WriteByte(format.ExtJso.Opcode()); err != nil {
		return err
	}
	if err := e.w.WriteLiteral(name); err != nil {
		return err
	}
	if err := e.w.WriteU32(uint32(len(zipped))); err != nil { //nolint:gosec
		return err
	}
	_, err = e.w.Write(zipped)

	return err
}

// WriteRaw emits a named binary blob.
//
// A qCompressed candidate is built first; the zip form wins when it is
// smaller than the raw payload plus the two-byte length saving. Raw
// payloads larger than 65535 bytes are split into chunks emitted as
// independent raw records under the same literal name; consumers
// re-assemble by name and order.
func (e *Encoder) WriteRaw(name string, data []byte) error {
	if e.finished {
		return errs.ErrEncoderFinished
	}

	zipped, err := e.codec.Compress(data)
	if err != nil {
		return fmt.Errorf("raw %q: %w", name, err)
	}

	if len(zipped) < len(data)+2 {
		if err := e.w.WriteByte(format.ExtZip.Opcode()); err != nil {
			return err
		}
		if err := e.w.WriteLiteral(name); err != nil {
			return err
		}
		if err := e.w.WriteU32(uint32(len(zipped))); err != nil { //nolint:gosec
			return err
		}
		_, err = e.w.Write(zipped)

		return err
	}

	for first := true; first || len(data) > 0; first = false {
		chunk := data
		if len(chunk) > format.MaxRawChunk {
			chunk = chunk[:format.MaxRawChunk]
		}
		data = data[len(chunk):]

		if err := e.w.WriteByte(format.ExtRaw.Opcode()); err != nil {
			return err
		}
		if err := e.w.WriteLiteral(name); err != nil {
			return err
		}
		if err := e.w.WriteU16(uint16(len(chunk))); err != nil { //nolint:gosec
			return err
		}
		if _, err := e.w.Write(chunk); err != nil {
			return err
		}
	}

	return nil
}

// Finish writes the stop byte and flushes the sink. The encoder cannot
// be used afterwards.
func (e *Encoder) Finish() error {
	if e.finished {
		return errs.ErrEncoderFinished
	}
	e.finished = true

	if err := e.w.WriteByte(format.ExtStop.Opcode()); err != nil {
		return err
	}

	return e.w.Flush()
}

// BytesWritten returns the number of bytes emitted so far.
func (e *Encoder) BytesWritten() int64 {
	return e.w.BytesWritten()
}
