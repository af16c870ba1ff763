// Package ingest turns the two historical XML recording dialects into
// APXTLM record streams.
//
// It contains the dialect sniffer and one SAX-style state machine per
// dialect. Both walkers consume pull tokens in document order and fully
// mutate encoder state per event; nothing is queued or re-ordered.
package ingest

import (
	"encoding/xml"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"
)

// jan2000Ms is the earliest plausible recording timestamp. Anything
// before it is replaced by the input file's modification time.
var jan2000Ms = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Unit describes the recorded unit when the source exposes one.
type Unit struct {
	Name string
	Type string
	UID  string
	Time uint64 // ms since Unix epoch
}

// Options configures an ingest run.
type Options struct {
	// UTCOffset is the recording's UTC offset in seconds.
	UTCOffset int32

	// IncludeJSO enables sub-tree capture of unrecognized elements
	// into embedded jso records.
	IncludeJSO bool

	// Logger receives non-fatal skip notices (failed sub-tree
	// captures). A nil logger discards them.
	Logger *log.Logger

	// BuildInfo assembles the embedded info payload once the base
	// timestamp is resolved. A nil BuildInfo embeds an empty object
	// (the encoder still injects timestamp and utc_offset).
	BuildInfo func(start time.Time, unit Unit) map[string]any
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return log.New(io.Discard, "", 0)
}

func (o Options) buildInfo(start time.Time, unit Unit) map[string]any {
	if o.BuildInfo == nil {
		return map[string]any{}
	}

	return o.BuildInfo(start, unit)
}

// Stats summarizes a completed ingest run.
type Stats struct {
	Fields  int   // declared fields
	Samples int   // accepted numeric samples (before value-change suppression)
	Events  int   // emitted event instances
	Blobs   int   // captured sub-tree jso records (the info record is not counted)
	Bytes   int64 // bytes written to the output sink
}

// splitNames tokenizes a field-name list on comma, whitespace and
// semicolon, dropping empty tokens.
func splitNames(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// splitRow tokenizes a CSV sample row. Separators are comma and
// semicolon; empty columns are preserved so later columns keep their
// field index. Whitespace around tokens is trimmed.
func splitRow(s string, dst []string) []string {
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' || s[i] == ';' {
			dst = append(dst, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}

	return dst
}

// parseFinite parses a numeric token, rejecting NaN and infinities.
func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}

// attrValue returns the value of the named attribute, or "".
func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}

	return ""
}

// collectText consumes tokens up to the end of the current element and
// returns the concatenated character data of the element itself
// (nested elements are consumed but their text is not included).
func collectText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if depth == 0 {
				sb.Write(t)
			}
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return sb.String(), nil
			}
			depth--
		}
	}
}
