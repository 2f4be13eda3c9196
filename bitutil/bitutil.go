package bitutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const DefaultHexPadding = 8

var ErrInvalidDimIndex = errors.New("invalid dimIndex")

// CreateMask returns a value with bits [offset, offset+width) set. Bits beyond
// the 32nd are dropped.
func CreateMask(offset, width uint32) uint32 {
	if width == 0 || offset >= 32 {
		return 0
	}
	if width >= 32 {
		return ^uint32(0) << offset
	}
	return ((uint32(1) << width) - 1) << offset
}

func ExtractBits(value, offset, width uint32) uint32 {
	if offset >= 32 {
		return 0
	}
	return (value & CreateMask(offset, width)) >> offset
}

func HexFormat(value uint32, padding int, includePrefix bool) string {
	s := strconv.FormatUint(uint64(value), 16)
	if len(s) < padding {
		s = strings.Repeat("0", padding-len(s)) + s
	}
	if includePrefix {
		return "0x" + s
	}
	return s
}

// BinaryFormat renders value in base 2. When group is set, a space separates
// every nibble counting from the least significant bit.
func BinaryFormat(value uint32, padding int, includePrefix, group bool) string {
	s := strconv.FormatUint(uint64(value), 2)
	if len(s) < padding {
		s = strings.Repeat("0", padding-len(s)) + s
	}

	if group && len(s) > 4 {
		var b strings.Builder
		lead := len(s) % 4
		if lead > 0 {
			b.WriteString(s[:lead])
		}
		for i := lead; i < len(s); i += 4 {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(s[i : i+4])
		}
		s = b.String()
	}

	if includePrefix {
		return "0b" + s
	}
	return s
}

// ParseInteger accepts 0x (hex), 0b or # (binary) and plain decimal text. The
// second result is false when text is none of those or does not fit 32 bits.
func ParseInteger(text string) (uint32, bool) {
	text = strings.TrimSpace(text)

	base := 10
	switch {
	case strings.HasPrefix(text, "0x"), strings.HasPrefix(text, "0X"):
		base, text = 16, text[2:]
	case strings.HasPrefix(text, "0b"), strings.HasPrefix(text, "0B"):
		base, text = 2, text[2:]
	case strings.HasPrefix(text, "#"):
		base, text = 2, text[1:]
	}

	// ParseUint would otherwise accept underscores and signs in some forms
	if len(text) == 0 || strings.ContainsAny(text, "_+-") {
		return 0, false
	}

	value, err := strconv.ParseUint(text, base, 32)
	if err != nil {
		return 0, false
	}
	return uint32(value), true
}

// ParseDimIndex expands a dimIndex specification into exactly count suffixes.
func ParseDimIndex(spec string, count int) ([]string, error) {
	spec = strings.TrimSpace(spec)

	if strings.Contains(spec, ",") {
		parts := strings.Split(spec, ",")
		if len(parts) != count {
			return nil, fmt.Errorf("%w: %q has %d entries, expected %d", ErrInvalidDimIndex, spec, len(parts), count)
		}
		result := make([]string, len(parts))
		for i, part := range parts {
			result[i] = strings.TrimSpace(part)
		}
		return result, nil
	}

	from, to, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized form %q", ErrInvalidDimIndex, spec)
	}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)

	// Numeric range
	if start, err := strconv.Atoi(from); err == nil {
		end, err := strconv.Atoi(to)
		if err != nil {
			return nil, fmt.Errorf("%w: unrecognized form %q", ErrInvalidDimIndex, spec)
		}
		if end-start+1 < count {
			return nil, fmt.Errorf("%w: range %q yields fewer than %d entries", ErrInvalidDimIndex, spec, count)
		}
		result := make([]string, count)
		for i := range result {
			result[i] = strconv.Itoa(start + i)
		}
		return result, nil
	}

	// Single letter range
	if len(from) == 1 && len(to) == 1 && isLetter(from[0]) && isLetter(to[0]) {
		start, end := int(from[0]), int(to[0])
		if end-start+1 < count {
			return nil, fmt.Errorf("%w: range %q yields fewer than %d entries", ErrInvalidDimIndex, spec, count)
		}
		result := make([]string, count)
		for i := range result {
			result[i] = string(rune(start + i))
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: unrecognized form %q", ErrInvalidDimIndex, spec)
}

// CleanupDescription folds the line breaks and indentation SVD descriptions
// usually carry into single spaces.
func CleanupDescription(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = strings.TrimLeft(lines[i], " \t")
	}
	return strings.Join(lines, " ")
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
