// Package endian provides byte order utilities for binary encoding.
//
// The APXTLM container is little-endian everywhere except the qCompress
// length prefix, so the stream writer and the file header use
// GetLittleEndianEngine(), and GetBigEndianEngine() is used only inside
// the compression envelope.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder interfaces from
// encoding/binary into a single interface for convenient byte order
// operations.
//
// This interface is satisfied by binary.LittleEndian and binary.BigEndian
// from the standard library, making it fully compatible with existing Go
// code while providing access to both read/write and append operations.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
