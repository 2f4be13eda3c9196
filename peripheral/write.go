package peripheral

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"omibyte.io/regview/bitutil"
)

const expectedFormat = "expected 0x<hex>, 0b<binary>, #<binary> or a decimal number"

// UpdateRegister parses input and writes it to a whole register.
func (t *Tree) UpdateRegister(ctx context.Context, ch MemoryChannel, id NodeID, input string) error {
	n := t.node(id)
	if n.kind != KindRegister {
		return fmt.Errorf("%w: %s is a %s", ErrNotUpdatable, t.Path(id), n.kind)
	}
	if !n.access.CanWrite() {
		return fmt.Errorf("%w: %s", ErrReadOnly, t.Path(id))
	}

	value, ok := bitutil.ParseInteger(input)
	if !ok {
		return fmt.Errorf("%w: %q, %s", ErrInvalidValue, input, expectedFormat)
	}
	if n.bits < 32 && uint64(value) >= uint64(1)<<n.bits {
		return fmt.Errorf("%w: %s accepts at most 0x%X", ErrOutOfRange, t.Path(id), bitutil.CreateMask(0, n.bits))
	}

	return t.writeRegister(ctx, ch, id, value)
}

// UpdateField parses input and merges it into the owning register. Fields
// with an enumeration also accept the name of one of their values.
func (t *Tree) UpdateField(ctx context.Context, ch MemoryChannel, id NodeID, input string) error {
	n := t.node(id)
	if n.kind != KindField {
		return fmt.Errorf("%w: %s is a %s", ErrNotUpdatable, t.Path(id), n.kind)
	}

	for _, ev := range n.enum {
		if ev.Name == strings.TrimSpace(input) {
			return t.writeField(ctx, ch, id, ev.Value)
		}
	}

	value, ok := bitutil.ParseInteger(input)
	if !ok {
		if len(n.enum) > 0 {
			return fmt.Errorf("%w: %q is neither a value of %s nor a number, %s", ErrInvalidValue, input, t.Path(id), expectedFormat)
		}
		return fmt.Errorf("%w: %q, %s", ErrInvalidValue, input, expectedFormat)
	}
	return t.writeField(ctx, ch, id, value)
}

// SetFieldEnum writes the enumerated value called name to a field.
func (t *Tree) SetFieldEnum(ctx context.Context, ch MemoryChannel, id NodeID, name string) error {
	n := t.node(id)
	if n.kind != KindField {
		return fmt.Errorf("%w: %s is a %s", ErrNotUpdatable, t.Path(id), n.kind)
	}
	for _, ev := range n.enum {
		if ev.Name == name {
			return t.writeField(ctx, ch, id, ev.Value)
		}
	}
	return fmt.Errorf("%w: %s has no enumerated value %q", ErrInvalidValue, t.Path(id), name)
}

func (t *Tree) writeField(ctx context.Context, ch MemoryChannel, id NodeID, value uint32) error {
	n := t.node(id)
	if !n.access.CanWrite() {
		return fmt.Errorf("%w: %s", ErrReadOnly, t.Path(id))
	}

	limit := bitutil.CreateMask(0, n.bits)
	if value > limit {
		return fmt.Errorf("%w: %s accepts at most 0x%X", ErrOutOfRange, t.Path(id), limit)
	}

	r := t.node(n.parent)
	merged := (r.value &^ bitutil.CreateMask(n.offset, n.bits)) | (value << n.offset)
	return t.writeRegister(ctx, ch, n.parent, merged)
}

// writeRegister sends value to the target and, once acknowledged, updates the
// cached value and resynchronises the parent. Write failures are returned
// unchanged and are not retried. A failed resynchronisation does not undo the
// write.
func (t *Tree) writeRegister(ctx context.Context, ch MemoryChannel, id NodeID, value uint32) error {
	n := t.node(id)
	size, err := byteWidth(n)
	if err != nil {
		return err
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	data := buf[:size]

	address := bitutil.HexFormat(t.Address(id), bitutil.DefaultHexPadding, true)
	if err := ch.WriteMemory(ctx, address, hex.EncodeToString(data)); err != nil {
		return fmt.Errorf("write %s at %s: %w", t.Path(id), address, err)
	}

	n.value = value
	n.known = true

	// Keep the fetched window coherent so that decoding does not bring back
	// the old value
	p := t.PeripheralOf(id)
	if window, err := t.Bytes(p, t.byteOffset(id), size); err == nil {
		copy(window, data)
	}

	if err := t.UpdateData(ctx, ch, n.parent); err != nil {
		t.logf("refresh of %s after write failed: %v", t.Path(n.parent), err)
	}
	return nil
}
