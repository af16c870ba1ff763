// Package apxtlm transcodes aerospace telemetry recordings from two
// historical XML dialects into the compact APXTLM binary container.
//
// The repack is stream-to-stream: the XML is read once, top to bottom,
// and a typed, bit-packed record stream is emitted with deferred
// dictionary declaration, value-change suppression and adaptive float
// narrowing.
//
// # Basic Usage
//
// Repacking a recording file:
//
//	import "github.com/andewhash/apx-repack"
//
//	result, err := apxtlm.Repack("flight.telemetry", "flight.apxtlm",
//	    repack.WithUTCOffset(3600),
//	    repack.WithJSO(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d samples\n", result.Stats.Samples)
//
// Driving the encoder directly:
//
//	enc, _ := stream.NewEncoder(w, time.Now(), 0)
//	enc.WriteInfo(map[string]any{"title": "test"})
//	roll, _ := enc.AddField("roll")
//	enc.WriteTimestamp(100)
//	enc.WriteSample(roll, 1.5, false)
//	enc.Finish()
//
// # Packages
//
//   - repack: dialect dispatch and info metadata assembly
//   - ingest: the sniffer and the per-dialect XML state machines
//   - stream: the buffered writer and the APXTLM record encoder
//   - section: the fixed 44-byte file header
//   - compress: the qCompress payload envelope
//   - encoding: half-float narrowing and string literal primitives
package apxtlm

import "github.com/andewhash/apx-repack/repack"

// Repack transcodes the recording at inPath into an APXTLM file at
// outPath. It is a convenience wrapper around repack.File.
func Repack(inPath, outPath string, opts ...repack.Option) (*repack.Result, error) {
	return repack.File(inPath, outPath, opts...)
}
