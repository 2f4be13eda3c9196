package peripheral

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"omibyte.io/regview/bitutil"
)

// UpdateData refreshes a node from the target.
//
// A peripheral issues one batched read over all of its readable registers and
// then decodes every descendant register, even when some of the reads failed.
// Failed ranges decode as 0xFF bytes and their errors are joined into the
// returned error. Collapsed peripherals are skipped. Clusters and registers
// only decode bytes already fetched by their peripheral; fields always derive
// their value from the register.
func (t *Tree) UpdateData(ctx context.Context, ch MemoryChannel, id NodeID) error {
	n := t.node(id)
	switch n.kind {
	case KindPeripheral:
		if !n.expanded {
			return nil
		}
		readErr := t.readPeripheral(ctx, ch, id)
		return errors.Join(readErr, t.decodeChildren(id))
	case KindCluster:
		return t.decodeChildren(id)
	case KindRegister:
		return t.decodeRegister(id)
	case KindField:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownNode, id)
}

func (t *Tree) decodeChildren(id NodeID) error {
	var errs []error
	for _, child := range t.node(id).children {
		switch t.nodes[child].kind {
		case KindCluster:
			errs = append(errs, t.decodeChildren(child))
		case KindRegister:
			errs = append(errs, t.decodeRegister(child))
		}
	}
	return errors.Join(errs...)
}

func (t *Tree) decodeRegister(id NodeID) error {
	n := t.node(id)
	if !n.access.CanRead() {
		return nil
	}

	size, err := byteWidth(n)
	if err != nil {
		return err
	}

	buf, err := t.Bytes(t.PeripheralOf(id), t.byteOffset(id), size)
	if errors.Is(err, ErrNoData) {
		// Nothing fetched yet, keep the reset value
		return nil
	} else if err != nil {
		return err
	}

	switch size {
	case 1:
		n.value = uint32(buf[0])
	case 2:
		n.value = uint32(binary.LittleEndian.Uint16(buf))
	case 4:
		n.value = binary.LittleEndian.Uint32(buf)
	}
	n.known = true
	return nil
}

func byteWidth(n *node) (uint32, error) {
	switch n.bits {
	case 8, 16, 32:
		return n.bits / 8, nil
	}
	return 0, fmt.Errorf("%w: register %s is %d bits wide", ErrUnsupportedSize, n.name, n.bits)
}

// Bytes returns the slice of the last fetched window of a peripheral.
func (t *Tree) Bytes(peripheral NodeID, offset, size uint32) ([]byte, error) {
	p := t.node(peripheral)
	if p.window == nil {
		return nil, ErrNoData
	}
	if uint64(offset)+uint64(size) > uint64(len(p.window)) {
		return nil, fmt.Errorf("%w: %d bytes at offset %#x outside %s", ErrNoData, size, offset, p.name)
	}
	return p.window[offset : offset+size], nil
}

func (t *Tree) readPeripheral(ctx context.Context, ch MemoryChannel, id NodeID) error {
	base := t.node(id).offset

	// Registers that wrapped around the address space or lie too far away
	// cannot be placed in the window
	var errs []error
	ranges := t.collectRanges(id)
	ranges = slices.DeleteFunc(ranges, func(r AddrRange) bool {
		if r.Base < base || r.End()-uint64(base) > MaxPeripheralSpan {
			errs = append(errs, fmt.Errorf("%w: %d bytes at %#x", ErrAddressRange, r.Length, r.Base))
			return true
		}
		return false
	})
	ranges = CoalesceRanges(ranges, t.options.GapThreshold)
	ranges = SplitIntoChunks(ranges, t.options.MaxReadChunk)

	// Size the window to cover the address block and every register
	length := min(uint64(t.node(id).length), MaxPeripheralSpan)
	for _, r := range ranges {
		if end := r.End() - uint64(base); end > length {
			length = end
		}
	}
	window := make([]byte, length)

	var g errgroup.Group
	if t.options.MaxConcurrentReads > 0 {
		g.SetLimit(t.options.MaxConcurrentReads)
	}

	readErrs := make([]error, len(ranges))
	for i, r := range ranges {
		dst := window[r.Base-base : uint64(r.Base-base)+uint64(r.Length)]
		g.Go(func() error {
			address := bitutil.HexFormat(r.Base, bitutil.DefaultHexPadding, true)
			data, err := ch.ReadMemory(ctx, address, int(r.Length))
			if err != nil {
				fill(dst, 0xFF)
				readErrs[i] = fmt.Errorf("read %d bytes at %s: %w", r.Length, address, err)
				return nil
			}
			n := copy(dst, data)
			fill(dst[n:], 0xFF)
			return nil
		})
	}
	g.Wait()

	t.node(id).window = window
	return errors.Join(append(errs, readErrs...)...)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
