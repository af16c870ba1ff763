package ingest

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/andewhash/apx-repack/format"
	"github.com/andewhash/apx-repack/internal/pool"
	"github.com/andewhash/apx-repack/stream"
)

// Seconds-vs-milliseconds heuristic bounds for the root timestamp.
const (
	secondsLow  = 1e9  // 2001-09-09 in seconds
	secondsHigh = 1e11 // 1973-03-03 in ms; values below this are seconds
)

// Datalink repacks a <mandala> datalink recording read from r into an
// APXTLM stream written to out.
//
// mtime is the input file's modification time, used as the timestamp
// fallback.
func Datalink(r io.Reader, mtime time.Time, out io.Writer, opts Options) (*Stats, error) {
	st := &datalinkIngest{
		opts:  opts,
		mtime: mtime,
		out:   out,
	}

	dec := xml.NewDecoder(bufio.NewReaderSize(r, ingestBufferSize))
	if err := st.run(dec); err != nil {
		return nil, err
	}
	if st.enc == nil {
		return nil, fmt.Errorf("datalink parse: no root element")
	}
	if err := st.enc.Finish(); err != nil {
		return nil, err
	}

	st.stats.Fields = st.enc.FieldCount()
	st.stats.Bytes = st.enc.BytesWritten()

	return &st.stats, nil
}

type datalinkIngest struct {
	opts  Options
	mtime time.Time
	out   io.Writer

	enc   *stream.Encoder
	stats Stats

	baseMs int64
	unit   Unit

	fieldNames []string
	declared   bool
}

func (st *datalinkIngest) run(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("datalink parse: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if st.enc == nil {
			if err := st.openRoot(start); err != nil {
				return err
			}
			continue
		}

		if err := st.handleChild(dec, start); err != nil {
			return err
		}
	}
}

// openRoot resolves the base timestamp from the root element's time_ms
// or UTC attribute. Values in the 1e9..1e11 range are seconds and are
// scaled to ms; anything earlier than 2000-01-01 UTC falls back to the
// input's mtime.
func (st *datalinkIngest) openRoot(root xml.StartElement) error {
	raw := attrValue(root.Attr, "time_ms")
	if raw == "" {
		raw = attrValue(root.Attr, "UTC")
	}

	var base int64
	if v, ok := parseFinite(raw); ok {
		if v >= secondsLow && v < secondsHigh {
			v *= 1000
		}
		base = int64(v)
	}
	if base < jan2000Ms {
		base = st.mtime.UnixMilli()
	}
	st.baseMs = base

	if v := attrValue(root.Attr, "callsign"); v != "" {
		st.unit.Name = v
	}
	if v := attrValue(root.Attr, "uid"); v != "" {
		st.unit.UID = v
	}
	st.unit.Time = uint64(base) //nolint:gosec

	enc, err := stream.NewEncoder(st.out, time.UnixMilli(base), st.opts.UTCOffset)
	if err != nil {
		return err
	}
	if err := enc.WriteInfo(st.opts.buildInfo(time.UnixMilli(base), st.unit)); err != nil {
		return err
	}
	st.enc = enc

	return nil
}

// handleChild processes a direct child of the root element.
func (st *datalinkIngest) handleChild(dec *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "fields":
		text, err := collectText(dec)
		if err != nil {
			return err
		}
		if !st.declared {
			if names := splitNames(text); len(names) > 0 {
				st.fieldNames = names
			}
		}
		return nil
	case "S", "D":
		return st.handleRow(dec, start)
	case "event", "evt":
		return handleEventElement(st.enc, dec, start, &st.stats)
	default:
		return st.handleCapture(dec, start)
	}
}

func (st *datalinkIngest) ensureFields(hint int) error {
	if st.declared {
		return nil
	}
	st.declared = true

	names := st.fieldNames
	if len(names) == 0 {
		n := hint
		if n > format.MaxFieldCount {
			n = format.MaxFieldCount
		}
		names = make([]string, n)
		for i := range names {
			names[i] = "#" + strconv.Itoa(i)
		}
	} else if len(names) > format.MaxFieldCount {
		names = names[:format.MaxFieldCount]
	}

	for i, name := range names {
		if st.enc.FieldIndex(name) >= 0 {
			name = name + "#" + strconv.Itoa(i)
		}
		if _, err := st.enc.AddField(name); err != nil {
			return err
		}
	}

	return nil
}

// handleRow processes one <S> or <D> CSV sample row. The row timestamp
// is the first of the t, ts, time_ms or UTC attributes that parses,
// defaulting to 0, and is written exactly as provided (truncated to
// u32 ms).
func (st *datalinkIngest) handleRow(dec *xml.Decoder, start xml.StartElement) error {
	var ms uint64
	for _, key := range [...]string{"t", "ts", "time_ms", "UTC"} {
		if raw := attrValue(start.Attr, key); raw != "" {
			if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
				ms = v
				break
			}
		}
	}

	text, err := collectText(dec)
	if err != nil {
		return err
	}

	tokens, release := pool.GetStringSlice()
	defer release()
	tokens = splitRow(text, tokens)

	if err := st.ensureFields(len(tokens)); err != nil {
		return err
	}

	if err := st.enc.WriteTimestamp(uint32(ms)); err != nil { //nolint:gosec
		return err
	}

	for i, tok := range tokens {
		if tok == "" || i >= st.enc.FieldCount() {
			continue
		}
		v, ok := parseFinite(tok)
		if !ok {
			continue
		}
		if err := st.enc.WriteSample(i, v, false); err != nil {
			return err
		}
		st.stats.Samples++
	}

	return nil
}

// handleCapture captures a top-level sub-tree as a jso record carrying
// the base timestamp.
func (st *datalinkIngest) handleCapture(dec *xml.Decoder, start xml.StartElement) error {
	if !st.opts.IncludeJSO {
		return dec.Skip()
	}

	name := start.Name.Local
	v, err := parseValue(dec, start)
	if err != nil {
		return fmt.Errorf("capture %q: %w", name, err)
	}

	if err := st.enc.WriteTimestamp(uint32(st.baseMs)); err != nil { //nolint:gosec
		return err
	}

	return emitJSO(st.enc, st.opts.logger(), name, v, uint64(st.baseMs), &st.stats) //nolint:gosec
}
