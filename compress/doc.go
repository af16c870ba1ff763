// Package compress implements the qCompress payload envelope used by
// the jso and zip records of the APXTLM container.
//
// The envelope is a 32-bit big-endian original-length prefix followed
// by a zlib deflate stream (zlib header and adler32 checksum included):
//
//	uncompressed_length_u32_BE ‖ zlib(payload)
//
// Consumers rely on byte-for-byte reproducibility of the envelope, so
// the compression level is fixed and no alternative codecs exist.
package compress
