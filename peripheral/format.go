package peripheral

import (
	"fmt"
	"strconv"

	"omibyte.io/regview/bitutil"
)

// ResolvedFormat walks up through Auto until an explicit format is found.
// Without one, fields narrower than a nibble show binary and everything else
// shows hexadecimal.
func (t *Tree) ResolvedFormat(id NodeID) Format {
	start := t.node(id)
	for cur := id; cur != NoNode; cur = t.node(cur).parent {
		if f := t.node(cur).format; f != Auto {
			return f
		}
	}
	if start.kind == KindField && start.bits < 4 {
		return Binary
	}
	return Hexadecimal
}

// FormattedValue renders the current value of a register or field in its
// resolved format.
func (t *Tree) FormattedValue(id NodeID) string {
	n := t.node(id)
	if n.kind != KindRegister && n.kind != KindField {
		return ""
	}
	if !n.access.CanRead() {
		return "(Write Only)"
	}

	value, known := t.Value(id)
	if !known {
		return "?"
	}

	text := formatValue(value, n.bits, t.ResolvedFormat(id), n.kind == KindRegister)
	if n.kind == KindField && len(n.enum) > 0 {
		if ev, ok := lookupEnum(n.enum, value); ok {
			return fmt.Sprintf("%s (%s)", ev.Name, text)
		}
		return fmt.Sprintf("<unknown> (%s)", text)
	}
	return text
}

func formatValue(value, bits uint32, format Format, group bool) string {
	switch format {
	case Decimal:
		return strconv.FormatUint(uint64(value), 10)
	case Binary:
		return bitutil.BinaryFormat(value, int(bits), true, group)
	default:
		return bitutil.HexFormat(value, int((bits+3)/4), true)
	}
}

func lookupEnum(values []EnumeratedValue, value uint32) (EnumeratedValue, bool) {
	for _, ev := range values {
		if ev.Value == value {
			return ev, true
		}
	}
	return EnumeratedValue{}, false
}

// Label is the short display text of a node.
func (t *Tree) Label(id NodeID) string {
	n := t.node(id)
	switch n.kind {
	case KindPeripheral:
		return fmt.Sprintf("%s @ %s", n.name, bitutil.HexFormat(n.offset, bitutil.DefaultHexPadding, true))
	case KindCluster:
		return fmt.Sprintf("%s [%s]", n.name, bitutil.HexFormat(n.offset, 0, true))
	case KindRegister:
		return fmt.Sprintf("%s @ %s", n.name, bitutil.HexFormat(t.Address(id), bitutil.DefaultHexPadding, true))
	case KindField:
		if n.bits == 1 {
			return fmt.Sprintf("%s [%d]", n.name, n.offset)
		}
		return fmt.Sprintf("%s [%d:%d]", n.name, n.offset+n.bits-1, n.offset)
	}
	return n.name
}
