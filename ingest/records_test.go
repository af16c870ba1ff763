package ingest

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andewhash/apx-repack/compress"
	"github.com/andewhash/apx-repack/encoding"
	"github.com/andewhash/apx-repack/format"
	"github.com/andewhash/apx-repack/section"
)

// record is one decoded wire record, used by the ingest tests to walk
// encoder output.
type record struct {
	kind    string // ts, field, evtid, evt, jso, raw, zip, sample, stop
	name    string
	ms      uint32
	index   int
	dspec   format.DSpec
	value   float64
	uplink  bool
	opt8    bool
	strs    []string
	payload []byte // jso/zip: qCompress envelope; raw: chunk bytes
}

// scanStream decodes a complete APXTLM byte stream produced by the
// encoder: the header plus every record up to and including the stop
// byte.
func scanStream(t *testing.T, data []byte) (section.Header, []record) {
	t.Helper()

	var hdr section.Header
	require.NoError(t, hdr.Parse(data[:section.HeaderSize]))

	pos := section.HeaderSize
	lastIndex := -1
	uplink := false
	var keyCounts []int
	var records []record

	cstring := func() string {
		start := pos
		for data[pos] != 0 {
			pos++
		}
		s := string(data[start:pos])
		pos++

		return s
	}
	literal := func() string {
		require.Equal(t, byte(format.LiteralPrefix), data[pos])
		pos++

		return cstring()
	}
	u16 := func() uint16 {
		v := binary.LittleEndian.Uint16(data[pos : pos+2])
		pos += 2

		return v
	}
	u32 := func() uint32 {
		v := binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4

		return v
	}

	for pos < len(data) {
		head := data[pos]
		pos++

		if head&0x0F == 0 { // extension opcode
			ext := format.ExtID(head >> 4)
			switch ext {
			case format.ExtStop:
				records = append(records, record{kind: "stop"})
				require.Equal(t, len(data), pos, "stop byte must be last")

				return hdr, records
			case format.ExtTs:
				records = append(records, record{kind: "ts", ms: u32()})
				lastIndex = -1
			case format.ExtDir:
				uplink = true
			case format.ExtField:
				rec := record{kind: "field", name: cstring()}
				count := int(data[pos])
				pos++
				for i := 0; i < count; i++ {
					rec.strs = append(rec.strs, cstring())
				}
				records = append(records, rec)
			case format.ExtEvtid:
				rec := record{kind: "evtid", name: cstring()}
				count := int(data[pos])
				pos++
				for i := 0; i < count; i++ {
					rec.strs = append(rec.strs, cstring())
				}
				keyCounts = append(keyCounts, count)
				records = append(records, rec)
			case format.ExtEvt:
				rec := record{kind: "evt", index: int(data[pos])}
				pos++
				require.Less(t, rec.index, len(keyCounts), "evt must follow its evtid")
				for i := 0; i < keyCounts[rec.index]; i++ {
					rec.strs = append(rec.strs, literal())
				}
				records = append(records, rec)
			case format.ExtJso:
				rec := record{kind: "jso", name: literal()}
				size := u32()
				rec.payload = data[pos : pos+int(size)]
				pos += int(size)
				records = append(records, rec)
			case format.ExtRaw:
				rec := record{kind: "raw", name: literal()}
				size := u16()
				rec.payload = data[pos : pos+int(size)]
				pos += int(size)
				records = append(records, rec)
			case format.ExtZip:
				rec := record{kind: "zip", name: literal()}
				size := u32()
				rec.payload = data[pos : pos+int(size)]
				pos += int(size)
				records = append(records, rec)
			default:
				t.Fatalf("unknown extension opcode 0x%02X at %d", head, pos-1)
			}

			continue
		}

		// Value record.
		rec := record{kind: "sample", dspec: format.DSpec(head & 0x0F), uplink: uplink}
		uplink = false

		if head&format.Opt8Flag != 0 {
			rec.opt8 = true
			rec.index = lastIndex + 1 + int(head>>5&0x07)
		} else {
			rec.index = int(head>>5&0x07) | int(data[pos])<<3
			pos++
		}
		lastIndex = rec.index

		switch rec.dspec {
		case format.DSpecF16:
			rec.value = float64(encoding.HalfToFloat32(u16()))
		case format.DSpecF32:
			rec.value = float64(math.Float32frombits(u32()))
		default:
			t.Fatalf("unexpected sample dspec %s", rec.dspec)
		}
		records = append(records, rec)
	}

	t.Fatal("stream did not end with a stop byte")

	return hdr, records
}

// decodeJSO unwraps a jso record payload into a generic object.
func decodeJSO(t *testing.T, env []byte) map[string]any {
	t.Helper()

	payload, err := compress.NewQCompressor().Decompress(env)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(payload, &obj))

	return obj
}

// byKind filters records by kind.
func byKind(records []record, kind string) []record {
	var out []record
	for _, r := range records {
		if r.kind == kind {
			out = append(out, r)
		}
	}

	return out
}
