package ingest

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/andewhash/apx-repack/format"
)

// sniffHeadSize is how much of the input the content sniff reads.
const sniffHeadSize = 64 * 1024

// Sniff classifies an input file as telemetry or datalink.
//
// The checks short-circuit on first hit: filename extension, a
// case-insensitive scan of the first 64 KiB, and finally a tolerant
// XML parse of the head looking at top-level element names.
//
// Returns:
//   - format.Dialect: DialectUnknown when no check matches
//   - error: I/O errors only; an unclassifiable file is not an error here
func Sniff(path string) (format.Dialect, error) {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".telemetry"):
		return format.DialectTelemetry, nil
	case strings.HasSuffix(name, ".datalink.xml"), strings.Contains(name, ".datalink"):
		return format.DialectDatalink, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return format.DialectUnknown, err
	}
	defer f.Close()

	head := make([]byte, sniffHeadSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return format.DialectUnknown, err
	}
	head = head[:n]

	return SniffContent(head), nil
}

// SniffContent classifies the head bytes of an input.
func SniffContent(head []byte) format.Dialect {
	lower := bytes.ToLower(head)
	switch {
	case bytes.Contains(lower, []byte("<telemetry")):
		return format.DialectTelemetry
	case bytes.Contains(lower, []byte("<mandala")),
		bytes.Contains(lower, []byte("<s>")),
		bytes.Contains(lower, []byte("<d>")):
		return format.DialectDatalink
	}

	return sniffXML(head)
}

// sniffXML parses the head as XML and inspects top-level element names.
// Parse errors are expected (the head is usually a truncated document)
// and simply end the scan.
func sniffXML(head []byte) format.Dialect {
	dec := xml.NewDecoder(bytes.NewReader(head))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return format.DialectUnknown
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				name := strings.ToLower(t.Name.Local)
				if strings.Contains(name, "telemetry") {
					return format.DialectTelemetry
				}
				if strings.Contains(name, "datalink") || strings.Contains(name, "mandala") {
					return format.DialectDatalink
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
}
