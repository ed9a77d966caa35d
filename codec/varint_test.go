package codec

import (
	"bytes"
	"math"
	"testing"
)

func TestUnsignedRoundTrip(t *testing.T) {
	values := []uint64{0, 127, 128, 16384, 2097151, math.MaxUint64}
	for _, v := range values {
		buf := AppendUnsigned(nil, v)
		got, n, err := DecodeUnsigned(buf)
		if err != nil {
			t.Fatalf("DecodeUnsigned(%d): %v", v, err)
		}
		if n != len(buf) {
			t.Fatalf("DecodeUnsigned(%d): consumed %d, want %d", v, n, len(buf))
		}
		if got != v {
			t.Fatalf("DecodeUnsigned(%d): got %d", v, got)
		}
	}
}

func TestUnsignedExactEncoding(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
	}
	for _, c := range cases {
		got := AppendUnsigned(nil, c.v)
		if !bytes.Equal(got, c.want) {
			t.Errorf("AppendUnsigned(%d) = % X, want % X", c.v, got, c.want)
		}
	}
}

func TestSignedRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 64, 1023, -1024, math.MaxInt64, math.MinInt64}
	for _, v := range values {
		buf := AppendSigned(nil, v)
		got, n, err := DecodeSigned(buf)
		if err != nil {
			t.Fatalf("DecodeSigned(%d): %v", v, err)
		}
		if n != len(buf) {
			t.Fatalf("DecodeSigned(%d): consumed %d, want %d", v, n, len(buf))
		}
		if got != v {
			t.Fatalf("DecodeSigned(%d): got %d", v, got)
		}
	}
}

func TestSignedExactEncoding(t *testing.T) {
	cases := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x01}},
		{1, []byte{0x02}},
		{-2, []byte{0x03}},
	}
	for _, c := range cases {
		got := AppendSigned(nil, c.v)
		if !bytes.Equal(got, c.want) {
			t.Errorf("AppendSigned(%d) = % X, want % X", c.v, got, c.want)
		}
	}
}

func TestSignedExtremesTakeTenBytes(t *testing.T) {
	if n := len(AppendSigned(nil, math.MaxInt64)); n != 10 {
		t.Errorf("AppendSigned(MaxInt64) took %d bytes, want 10", n)
	}
	if n := len(AppendSigned(nil, math.MinInt64)); n != 10 {
		t.Errorf("AppendSigned(MinInt64) took %d bytes, want 10", n)
	}
}

func TestDecodeUnsignedInsufficientData(t *testing.T) {
	if _, _, err := DecodeUnsigned(nil); err != ErrInsufficientData {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
	// continuation bit set on the final byte: never terminates.
	truncated := []byte{0x80, 0x80, 0x80}
	if _, _, err := DecodeUnsigned(truncated); err != ErrInsufficientData {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
}
