// Package encoding provides the low-level value encodings of the APXTLM
// record stream: the IEEE 754 half-precision codec used for adaptive
// float narrowing, and the C-string/literal string primitives.
package encoding
