package bitutil

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCreateMask(t *testing.T) {
	tests := []struct {
		name   string
		offset uint32
		width  uint32
		mask   uint32
	}{
		{"zeroWidth", 4, 0, 0},
		{"lowNibble", 0, 4, 0xF},
		{"secondNibble", 4, 4, 0xF0},
		{"single", 31, 1, 0x80000000},
		{"full", 0, 32, 0xFFFFFFFF},
		{"wrap", 28, 8, 0xF0000000},
		{"offsetPastEnd", 32, 4, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if mask := CreateMask(tc.offset, tc.width); mask != tc.mask {
				t.Errorf("CreateMask(%d, %d) = %#x, expected %#x", tc.offset, tc.width, mask, tc.mask)
			}
		})
	}
}

func TestMaskExtractRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0xABCD1234, 0xFFFFFFFF, 0x80000001, 0x5A5A5A5A}
	for offset := uint32(0); offset < 32; offset++ {
		for width := uint32(1); offset+width <= 32; width++ {
			limit := CreateMask(0, width)
			for _, value := range values {
				for _, x := range []uint32{0, 1, limit / 2, limit} {
					merged := (value & ^CreateMask(offset, width)) | (x << offset)
					if got := ExtractBits(merged, offset, width); got != x {
						t.Fatalf("offset=%d width=%d value=%#x x=%#x: extracted %#x", offset, width, value, x, got)
					}
					if rest := merged & ^CreateMask(offset, width); rest != value&^CreateMask(offset, width) {
						t.Fatalf("offset=%d width=%d: bits outside the field changed", offset, width)
					}
				}
			}
		}
	}
}

func TestReadModifyWrite(t *testing.T) {
	value := uint32(0xABCD1234)
	value = (value & ^CreateMask(4, 4)) | (0xF << 4)
	if value != 0xABCD12F4 {
		t.Fatalf("got %#x, expected 0xabcd12f4", value)
	}
	if ExtractBits(value, 4, 4) != 0xF {
		t.Fatalf("field readback mismatch")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
	}{
		{"hexDefault", HexFormat(0x1234, DefaultHexPadding, true), "0x00001234"},
		{"hexNoPrefix", HexFormat(0xAB, 4, false), "00ab"},
		{"hexNoPadding", HexFormat(0xF, 0, true), "0xf"},
		{"hexWide", HexFormat(0xDEADBEEF, 2, true), "0xdeadbeef"},
		{"binaryPlain", BinaryFormat(5, 0, false, false), "101"},
		{"binaryPadded", BinaryFormat(5, 8, true, false), "0b00000101"},
		{"binaryGrouped", BinaryFormat(0xA5, 8, false, true), "1010 0101"},
		{"binaryGroupedOdd", BinaryFormat(0x15, 6, true, true), "0b01 0101"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.actual != tc.expected {
				t.Errorf("got %q, expected %q", tc.actual, tc.expected)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 7, 0x80, 0xFFFF, 0x12345678, 0xFFFFFFFF}
	for _, v := range values {
		for _, padding := range []int{0, 4, 8, 32} {
			if got, ok := ParseInteger(HexFormat(v, padding, true)); !ok || got != v {
				t.Errorf("hex round trip of %#x (padding %d) = %#x, %v", v, padding, got, ok)
			}
			if got, ok := ParseInteger(BinaryFormat(v, padding, true, false)); !ok || got != v {
				t.Errorf("binary round trip of %#x (padding %d) = %#x, %v", v, padding, got, ok)
			}
		}
	}
}

func TestParseInteger(t *testing.T) {
	tests := []struct {
		text  string
		value uint32
		ok    bool
	}{
		{"0x1F", 0x1F, true},
		{"0XfF", 0xFF, true},
		{"0b101", 5, true},
		{"#1100", 12, true},
		{"42", 42, true},
		{" 7 ", 7, true},
		{"4294967295", 0xFFFFFFFF, true},
		{"4294967296", 0, false},
		{"", 0, false},
		{"0x", 0, false},
		{"abc", 0, false},
		{"-1", 0, false},
		{"0b102", 0, false},
		{"1_000", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			value, ok := ParseInteger(tc.text)
			if ok != tc.ok || value != tc.value {
				t.Errorf("ParseInteger(%q) = %d, %v, expected %d, %v", tc.text, value, ok, tc.value, tc.ok)
			}
		})
	}
}

func TestParseDimIndex(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		count    int
		expected []string
		fails    bool
	}{
		{"numericRange", "0-3", 4, []string{"0", "1", "2", "3"}, false},
		{"numericRangeLonger", "2-9", 3, []string{"2", "3", "4"}, false},
		{"letterRange", "A-D", 4, []string{"A", "B", "C", "D"}, false},
		{"list", "x,y,z", 3, []string{"x", "y", "z"}, false},
		{"listSpaces", "a, b", 2, []string{"a", "b"}, false},
		{"shortRange", "0-2", 5, nil, true},
		{"listMismatch", "x,y", 3, nil, true},
		{"letterShort", "A-B", 3, nil, true},
		{"garbage", "foo", 2, nil, true},
		{"singleToken", "foo", 1, nil, true},
		{"mixedRange", "1-Z", 2, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseDimIndex(tc.spec, tc.count)
			if tc.fails {
				if !errors.Is(err, ErrInvalidDimIndex) {
					t.Fatalf("expected ErrInvalidDimIndex, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != tc.count {
				t.Errorf("got %d entries, expected %d", len(result), tc.count)
			}
			if diff := cmp.Diff(tc.expected, result); diff != "" {
				t.Errorf("mismatch (-expected +got):\n%s", diff)
			}
		})
	}
}

func TestCleanupDescription(t *testing.T) {
	in := "Control\r\n    register\n\tfor UART"
	if out := CleanupDescription(in); out != "Control register for UART" {
		t.Errorf("got %q", out)
	}
}
