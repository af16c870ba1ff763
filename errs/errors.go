// Package errs defines the sentinel error values shared across the
// apx-repack packages.
//
// Callers should use errors.Is to test for these values; most call
// sites wrap them with additional context via fmt.Errorf("%w: ...").
package errs

import "errors"

// Encoder errors.
var (
	// ErrInfoWritten is returned when the info record is written more than once.
	ErrInfoWritten = errors.New("info record already written")

	// ErrEncoderFinished is returned when records are written after Finish.
	ErrEncoderFinished = errors.New("encoder already finished")

	// ErrFieldOverflow is returned when more than MaxFieldCount fields are declared.
	ErrFieldOverflow = errors.New("field dictionary full")

	// ErrEventOverflow is returned when more than MaxEventCount event schemas are declared.
	ErrEventOverflow = errors.New("event dictionary full")

	// ErrDuplicateField is returned when a field name is declared twice.
	ErrDuplicateField = errors.New("duplicate field name")

	// ErrDuplicateEvent is returned when an event schema name is declared twice.
	ErrDuplicateEvent = errors.New("duplicate event name")

	// ErrInvalidName is returned when a field or event name is empty.
	ErrInvalidName = errors.New("invalid name")

	// ErrUnknownField is returned when a sample references an undeclared field index.
	ErrUnknownField = errors.New("unknown field index")

	// ErrUnknownEvent is returned when an event instance references an undeclared schema.
	ErrUnknownEvent = errors.New("unknown event schema")

	// ErrValueCountMismatch is returned when event values do not match the schema key count.
	ErrValueCountMismatch = errors.New("event value count mismatch")
)

// Header errors.
var (
	// ErrInvalidHeaderSize is returned when a header slice is not HeaderSize bytes.
	ErrInvalidHeaderSize = errors.New("invalid header size")

	// ErrInvalidMagic is returned when a header does not start with the APXTLM magic.
	ErrInvalidMagic = errors.New("invalid magic")
)

// Ingest errors.
var (
	// ErrUnknownDialect is returned when the sniffer cannot classify an input file.
	ErrUnknownDialect = errors.New("unknown input dialect")

	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = errors.New("input not found")
)
