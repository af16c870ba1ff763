package ingest

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/andewhash/apx-repack/format"
	"github.com/andewhash/apx-repack/internal/pool"
	"github.com/andewhash/apx-repack/stream"
)

// ingestBufferSize is the input read chunk size.
const ingestBufferSize = 100 * 1024

// minFieldTokens is the minimum token count for a <fields> list to be
// accepted as the field dictionary.
const minFieldTokens = 5

// isoLayouts are the accepted <timestamp value="..."> formats.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Telemetry repacks a <telemetry> dialect recording read from r into an
// APXTLM stream written to out.
//
// mtime is the input file's modification time, used as the timestamp
// fallback.
func Telemetry(r io.Reader, mtime time.Time, out io.Writer, opts Options) (*Stats, error) {
	st := &telemetryIngest{
		opts:  opts,
		mtime: mtime,
		out:   out,
	}

	dec := xml.NewDecoder(bufio.NewReaderSize(r, ingestBufferSize))
	if err := st.run(dec); err != nil {
		return nil, err
	}

	// A recording without a <data> section still yields a valid file:
	// header, info and the stop byte.
	if err := st.ensureOpen(); err != nil {
		return nil, err
	}
	if err := st.enc.Finish(); err != nil {
		return nil, err
	}

	st.stats.Fields = st.enc.FieldCount()
	st.stats.Bytes = st.enc.BytesWritten()

	return &st.stats, nil
}

type telemetryIngest struct {
	opts  Options
	mtime time.Time
	out   io.Writer

	enc   *stream.Encoder
	stats Stats

	infoTimeMs int64 // <info time="..."> in ms
	tsValueMs  int64 // <timestamp value="..."> parsed ISO date
	unit       Unit
	baseMs     int64

	fieldNames []string
	declared   bool
	inData     bool
	sawRoot    bool
}

func (st *telemetryIngest) run(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("telemetry parse: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			if end, isEnd := tok.(xml.EndElement); isEnd && end.Name.Local == "data" {
				st.inData = false
			}
			continue
		}

		switch {
		case !st.sawRoot:
			// Descend into the root element.
			st.sawRoot = true
		case st.inData:
			if err := st.handleDataElement(dec, start); err != nil {
				return err
			}
		default:
			if err := st.handlePreludeElement(dec, start); err != nil {
				return err
			}
		}
	}
}

// handlePreludeElement processes direct children of the root outside
// <data>: info, timestamp, fields. Anything else is skipped whole.
func (st *telemetryIngest) handlePreludeElement(dec *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "info":
		st.handleInfoAttrs(start.Attr)
		return dec.Skip()
	case "timestamp":
		st.handleTimestampAttr(attrValue(start.Attr, "value"))
		return dec.Skip()
	case "fields":
		text, err := collectText(dec)
		if err != nil {
			return err
		}
		if names := splitNames(text); len(names) >= minFieldTokens {
			st.fieldNames = names
		}
		return nil
	case "data":
		st.inData = true
		return st.ensureOpen()
	default:
		return dec.Skip()
	}
}

func (st *telemetryIngest) handleDataElement(dec *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "D":
		return st.handleD(dec, start)
	case "E":
		return handleEventElement(st.enc, dec, start, &st.stats)
	case "U":
		return st.handleU(dec, start)
	default:
		return st.handleCapture(dec, start)
	}
}

func (st *telemetryIngest) handleInfoAttrs(attrs []xml.Attr) {
	if v := attrValue(attrs, "time"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.infoTimeMs = ms
		}
	}
	if v := attrValue(attrs, "callsign"); v != "" {
		st.unit.Name = v
	} else if v := attrValue(attrs, "name"); v != "" {
		st.unit.Name = v
	}
	if v := attrValue(attrs, "uid"); v != "" {
		st.unit.UID = v
	} else if v := attrValue(attrs, "vehicle_uid"); v != "" {
		st.unit.UID = v
	}
	if v := attrValue(attrs, "class"); v != "" {
		st.unit.Type = v
	} else if v := attrValue(attrs, "type"); v != "" {
		st.unit.Type = v
	}
}

func (st *telemetryIngest) handleTimestampAttr(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			st.tsValueMs = ts.UnixMilli()
			return
		}
	}
}

// ensureOpen resolves the base timestamp, writes the header and the
// info record, and makes the encoder ready. Safe to call repeatedly.
//
// Resolution priority: <info time> (ms), <timestamp value> (ISO date),
// the input's mtime. A resolved value earlier than 2000-01-01 UTC is
// replaced by the mtime.
func (st *telemetryIngest) ensureOpen() error {
	if st.enc != nil {
		return nil
	}

	base := st.infoTimeMs
	if base == 0 {
		base = st.tsValueMs
	}
	if base < jan2000Ms {
		base = st.mtime.UnixMilli()
	}
	st.baseMs = base
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

// ensureFields declares the field dictionary in a single burst on first
// use. When no <fields> list was accepted, names #0..#N-1 are
// synthesized from the row width hint.
func (st *telemetryIngest) ensureFields(hint int) error {
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
			// Duplicate names in the source list would shift every later
			// column; disambiguate to keep indexes aligned.
			name = name + "#" + strconv.Itoa(i)
		}
		if _, err := st.enc.AddField(name); err != nil {
			return err
		}
	}

	return nil
}

func (st *telemetryIngest) handleD(dec *xml.Decoder, start xml.StartElement) error {
	tAttr := attrValue(start.Attr, "t")
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

	var ms uint64
	if tAttr != "" {
		ms, _ = strconv.ParseUint(tAttr, 10, 64)
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
			continue // malformed column, skip this row's cell
		}
		if err := st.enc.WriteSample(i, v, false); err != nil {
			return err
		}
		st.stats.Samples++
	}

	return nil
}

// handleU processes an uplink burst: every immediate child element is
// one uplink sample whose tag is the field name, declared on the fly
// when new.
func (st *telemetryIngest) handleU(dec *xml.Decoder, start xml.StartElement) error {
	if err := st.ensureFields(len(st.fieldNames)); err != nil {
		return err
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			if err := st.handleUplinkChild(dec, t); err != nil {
				return err
			}
		}
	}
}

func (st *telemetryIngest) handleUplinkChild(dec *xml.Decoder, child xml.StartElement) error {
	tAttr := attrValue(child.Attr, "t")
	text, err := collectText(dec)
	if err != nil {
		return err
	}

	name := child.Name.Local
	index := st.enc.FieldIndex(name)
	if index < 0 {
		if st.enc.FieldCount() >= format.MaxFieldCount {
			return nil // dictionary full, drop the sample
		}
		index, err = st.enc.AddField(name)
		if err != nil {
			return err
		}
	}

	v, ok := parseFinite(strings.TrimSpace(text))
	if !ok {
		return nil
	}

	if tAttr != "" {
		if ms, err := strconv.ParseUint(tAttr, 10, 64); err == nil {
			if err := st.enc.WriteTimestamp(uint32(ms)); err != nil { //nolint:gosec
				return err
			}
		}
	}

	if err := st.enc.WriteSample(index, v, true); err != nil {
		return err
	}
	st.stats.Samples++

	return nil
}

func (st *telemetryIngest) handleCapture(dec *xml.Decoder, start xml.StartElement) error {
	if !st.opts.IncludeJSO {
		return dec.Skip()
	}

	name := start.Name.Local
	v, err := parseValue(dec, start)
	if err != nil {
		return fmt.Errorf("capture %q: %w", name, err)
	}

	return emitJSO(st.enc, st.opts.logger(), name, v, uint64(st.baseMs), &st.stats) //nolint:gosec
}
