package encoding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat32ToHalf(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		bits uint16
	}{
		{"one", 1.0, 0x3C00},
		{"one and a half", 1.5, 0x3E00},
		{"half", 0.5, 0x3800},
		{"minus two", -2.0, 0xC000},
		{"zero", 0.0, 0x0000},
		{"negative zero", float32(math.Copysign(0, -1)), 0x8000},
		{"max half", 65504, 0x7BFF},
		{"pos inf", float32(math.Inf(1)), 0x7C00},
		{"neg inf", float32(math.Inf(-1)), 0xFC00},
		{"min normal", 6.103515625e-05, 0x0400},
		{"subnormal", 3.0517578125e-05, 0x0200},          // 2^-15
		{"min subnormal", 5.960464477539063e-08, 0x0001}, // 2^-24
		{"overflow saturates", 131072, 0x7C00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.bits, Float32ToHalf(tt.in))
		})
	}
}

func TestFloat32ToHalfNaN(t *testing.T) {
	h := Float32ToHalf(float32(math.NaN()))
	require.Equal(t, uint16(0x7C00), h&0x7C00)
	require.NotZero(t, h&0x03FF, "NaN must not collapse to Inf")
	require.True(t, math.IsNaN(float64(HalfToFloat32(h))))
}

func TestFloat32ToHalfRoundToEven(t *testing.T) {
	// Exactly halfway between two half values: ties go to the even
	// mantissa in both directions.
	up := math.Float32frombits(0x3F803000) // kept mantissa 1 (odd), rounds up to 2
	require.Equal(t, uint16(0x3C02), Float32ToHalf(up))

	down := math.Float32frombits(0x3F805000) // kept mantissa 2 (even), stays 2
	require.Equal(t, uint16(0x3C02), Float32ToHalf(down))
}

func TestHalfToFloat32(t *testing.T) {
	tests := []struct {
		name string
		bits uint16
		out  float32
	}{
		{"one", 0x3C00, 1.0},
		{"minus one", 0xBC00, -1.0},
		{"min normal", 0x0400, 6.103515625e-05},
		{"subnormal", 0x0200, 3.0517578125e-05},
		{"min subnormal", 0x0001, 5.960464477539063e-08},
		{"max half", 0x7BFF, 65504},
		{"pos inf", 0x7C00, float32(math.Inf(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.out, HalfToFloat32(tt.bits))
		})
	}
}

func TestHalfToFloat32SignedZero(t *testing.T) {
	require.Equal(t, uint32(0), math.Float32bits(HalfToFloat32(0x0000)))
	require.Equal(t, uint32(0x80000000), math.Float32bits(HalfToFloat32(0x8000)))
}

func TestNarrows(t *testing.T) {
	t.Run("ExactValues", func(t *testing.T) {
		for _, v := range []float32{0, 1, -1, 1.5, 0.25, 100, -4096, 65504} {
			require.True(t, Narrows(v), "%v should round-trip", v)
		}
	})

	t.Run("InexactValues", func(t *testing.T) {
		for _, v := range []float32{float32(1) / 3, 0.1, 65505, 1e-30, 1e30} {
			require.False(t, Narrows(v), "%v should not round-trip", v)
		}
	})

	t.Run("NonFinite", func(t *testing.T) {
		require.True(t, Narrows(float32(math.Inf(1))))
		require.True(t, Narrows(float32(math.Inf(-1))))
		require.True(t, Narrows(float32(math.NaN())), "NaN equals NaN under the cache discipline")
	})

	t.Run("NegativeZeroDistinct", func(t *testing.T) {
		require.True(t, Narrows(float32(math.Copysign(0, -1))))
	})
}

func TestHalfRoundTripExhaustive(t *testing.T) {
	// Every finite half value must survive f16 → f32 → f16 unchanged.
	for bits := 0; bits < 0x10000; bits++ {
		h := uint16(bits)
		if h&0x7C00 == 0x7C00 && h&0x03FF != 0 {
			continue // NaN payloads may be canonicalized
		}
		f := HalfToFloat32(h)
		require.Equal(t, h, Float32ToHalf(f), "bits 0x%04X", h)
	}
}
