package ingest

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/andewhash/apx-repack/stream"
)

// handleEventElement processes an event element (<E> in telemetry,
// <event>/<evt> in datalink).
//
// The event name is the name attribute, defaulting to "event". The key
// list is the remaining attribute names in document order, with a
// synthetic "text" key appended when the element carries non-empty
// inner text. The schema is declared on first sight; later instances
// are projected onto the declared key list, absent keys yielding empty
// literals.
func handleEventElement(enc *stream.Encoder, dec *xml.Decoder, start xml.StartElement, stats *Stats) error {
	name := attrValue(start.Attr, "name")
	if name == "" {
		name = "event"
	}
	tAttr := attrValue(start.Attr, "t")

	text, err := collectText(dec)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)

	index := enc.EventIndex(name)
	if index < 0 {
		keys := make([]string, 0, len(start.Attr)+1)
		for _, a := range start.Attr {
			if a.Name.Local == "name" || a.Name.Local == "t" {
				continue
			}
			keys = append(keys, a.Name.Local)
		}
		if text != "" {
			keys = append(keys, "text")
		}

		index, err = enc.AddEvent(name, keys)
		if err != nil {
			return err
		}
	}

	if tAttr != "" {
		if ms, err := strconv.ParseUint(tAttr, 10, 64); err == nil {
			if err := enc.WriteTimestamp(uint32(ms)); err != nil { //nolint:gosec
				return err
			}
		}
	}

	schema, _ := enc.EventSchemaAt(index)
	values := make([]string, len(schema.Keys))
	for i, key := range schema.Keys {
		if key == "text" {
			values[i] = text
			continue
		}
		values[i] = attrValue(start.Attr, key)
	}

	if err := enc.WriteEvent(index, values); err != nil {
		return err
	}
	stats.Events++

	return nil
}

// emitJSO normalizes and emits a captured sub-tree as a jso record.
// Captures matching the node-dictionary shapes are emitted under the
// "nodes" literal; everything else keeps its tag name. Payloads the
// JSON encoder cannot represent are logged and skipped rather than
// aborting the repack.
func emitJSO(enc *stream.Encoder, lg *log.Logger, name string, v any, timeMs uint64, stats *Stats) error {
	if normalized, ok := tryNormalizeNodes(v, timeMs); ok {
		name = "nodes"
		v = normalized
	}

	if err := enc.WriteJSON(name, v); err != nil {
		var typeErr *json.UnsupportedTypeError
		var valueErr *json.UnsupportedValueError
		if errors.As(err, &typeErr) || errors.As(err, &valueErr) {
			lg.Printf("skipping %q capture: %v", name, err)
			return nil
		}

		return err
	}
	stats.Blobs++

	return nil
}
