// Package repack dispatches XML recordings into the APXTLM encoder:
// it classifies the input dialect, assembles the embedded info
// metadata and routes the file to the matching ingest state machine.
package repack

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andewhash/apx-repack/errs"
	"github.com/andewhash/apx-repack/format"
	"github.com/andewhash/apx-repack/ingest"
	"github.com/andewhash/apx-repack/internal/options"
)

type config struct {
	utcOffset  int32
	includeJSO bool
	logger     *log.Logger
}

// Option configures a repack run.
type Option = options.Option[*config]

// WithUTCOffset sets the recording's UTC offset in seconds. It is
// stored in the header and embedded in the info payload.
func WithUTCOffset(seconds int32) Option {
	return options.NoError(func(c *config) {
		c.utcOffset = seconds
	})
}

// WithJSO enables sub-tree capture of unrecognized XML elements into
// embedded jso records.
func WithJSO(enabled bool) Option {
	return options.NoError(func(c *config) {
		c.includeJSO = enabled
	})
}

// WithLogger sets the logger for non-fatal skip notices.
func WithLogger(l *log.Logger) Option {
	return options.NoError(func(c *config) {
		c.logger = l
	})
}

// Result summarizes a completed repack.
type Result struct {
	Dialect format.Dialect
	Stats   ingest.Stats
}

// File repacks the recording at inPath into an APXTLM file at outPath.
//
// The input dialect is sniffed from the filename and content head; an
// unclassifiable input is a fatal error. The output is written
// streaming; on failure whatever was flushed remains on disk (no
// atomic rename is performed).
//
// Returns:
//   - *Result: Dialect and ingest statistics
//   - error: ErrInputNotFound, ErrUnknownDialect, parse or I/O errors
func File(inPath, outPath string, opts ...Option) (*Result, error) {
	cfg := &config{}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	fi, err := os.Stat(inPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrInputNotFound, inPath)
		}
		return nil, err
	}

	dialect, err := ingest.Sniff(inPath)
	if err != nil {
		return nil, err
	}
	if dialect == format.DialectUnknown {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownDialect, inPath)
	}

	in, err := os.Open(inPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	ingestOpts := ingest.Options{
		UTCOffset:  cfg.utcOffset,
		IncludeJSO: cfg.includeJSO,
		Logger:     cfg.logger,
		BuildInfo:  infoBuilder(inPath, dialect, fi.ModTime(), cfg.utcOffset),
	}

	var stats *ingest.Stats
	switch dialect {
	case format.DialectTelemetry:
		stats, err = ingest.Telemetry(in, fi.ModTime(), out, ingestOpts)
	case format.DialectDatalink:
		stats, err = ingest.Datalink(in, fi.ModTime(), out, ingestOpts)
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownDialect, inPath)
	}
	if err != nil {
		return nil, fmt.Errorf("repack %s: %w", inPath, err)
	}

	if err := out.Close(); err != nil {
		return nil, err
	}

	return &Result{Dialect: dialect, Stats: *stats}, nil
}

// infoBuilder assembles the info payload for a source file once the
// ingest resolves the base timestamp and unit metadata.
func infoBuilder(inPath string, dialect format.Dialect, mtime time.Time, utcOffset int32) func(time.Time, ingest.Unit) map[string]any {
	base := filepath.Base(inPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return func(start time.Time, unit ingest.Unit) map[string]any {
		info := Info{
			Title:           stem,
			ImportName:      base,
			ImportTitle:     stem,
			ImportFormat:    dialect.String(),
			ImportTimestamp: mtime.UnixMilli(),
			UnitName:        unit.Name,
			UnitType:        unit.Type,
			UnitUID:         unit.UID,
			UnitTime:        unit.Time,
			Timestamp:       uint32(start.UnixMilli()), //nolint:gosec
			UTCOffset:       utcOffset,
		}

		return info.Object()
	}
}
