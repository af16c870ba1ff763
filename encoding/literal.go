package encoding

import "github.com/andewhash/apx-repack/format"

// AppendCString appends s as UTF-8 bytes followed by a NUL terminator.
//
// Interior NUL bytes would desynchronize readers, so they are dropped.
func AppendCString(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] != 0 {
			dst = append(dst, s[i])
		}
	}

	return append(dst, 0)
}

// AppendLiteral appends an inline string literal: one LiteralPrefix
// sentinel byte followed by a C-string.
//
// The wire format inlines every literal; any interning a writer does
// internally must not change these bytes.
func AppendLiteral(dst []byte, s string) []byte {
	dst = append(dst, format.LiteralPrefix)

	return AppendCString(dst, s)
}
