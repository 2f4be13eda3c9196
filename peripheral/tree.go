package peripheral

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"omibyte.io/regview/bitutil"
)

const (
	DefaultGapThreshold = 16
	DefaultMaxReadChunk = 512
	DefaultRegisterSize = 32

	// MaxPeripheralSpan bounds the distance between the base address of a
	// peripheral and the end of its last register. It also bounds the
	// window fetched by a refresh.
	MaxPeripheralSpan = 16 << 20
)

type Options struct {
	// GapThreshold is the largest gap in bytes tolerated between two register
	// ranges before they are read separately. A negative value disables
	// batching.
	GapThreshold int

	// MaxReadChunk caps the byte length of a single read request.
	MaxReadChunk uint32

	// MaxConcurrentReads bounds the number of reads in flight for one
	// peripheral refresh. Zero means no bound.
	MaxConcurrentReads int

	// Logf receives failures that are deliberately not returned, such as a
	// failed refresh after a successful write.
	Logf func(format string, args ...any)
}

// Tree is an arena holding every node of one device description. Nodes refer
// to each other by NodeID only.
type Tree struct {
	nodes       []node
	peripherals []NodeID
	options     Options
}

type node struct {
	kind        Kind
	name        string
	description string
	parent      NodeID
	children    []NodeID

	// offset is the base address of a peripheral, the byte offset of a
	// cluster or register from its parent, or the bit offset of a field.
	offset uint32
	// bits is the register size or field width. Peripherals and clusters
	// keep the default register size of their children here.
	bits       uint32
	length     uint32
	access     AccessType
	resetValue uint32
	group      string
	enum       []EnumeratedValue

	expanded bool
	pinned   bool
	format   Format

	value uint32
	known bool

	window []byte
}

type PeripheralOptions struct {
	Name        string
	Description string
	Group       string
	BaseAddress uint32
	TotalLength uint32
	Access      AccessType
	Size        uint32
	ResetValue  uint32
}

// ClusterOptions and RegisterOptions leave Access, Size and ResetValue unset
// to inherit them from the parent.
type ClusterOptions struct {
	Name          string
	Description   string
	AddressOffset uint32
	Access        AccessType
	Size          uint32
	ResetValue    *uint32
}

type RegisterOptions struct {
	Name          string
	Description   string
	AddressOffset uint32
	Access        AccessType
	Size          uint32
	ResetValue    *uint32
}

type FieldOptions struct {
	Name        string
	Description string
	BitOffset   uint32
	BitWidth    uint32
	Access      AccessType
	Enumeration []EnumeratedValue
}

func NewTree(options Options) *Tree {
	if options.MaxReadChunk == 0 {
		options.MaxReadChunk = DefaultMaxReadChunk
	}
	return &Tree{options: options}
}

func (t *Tree) Options() Options {
	return t.options
}

func (t *Tree) SetGapThreshold(gap int) {
	t.options.GapThreshold = gap
}

func (t *Tree) AddPeripheral(opts PeripheralOptions) NodeID {
	if opts.Access == AccessDefault {
		opts.Access = ReadWrite
	}
	if opts.Size == 0 {
		opts.Size = DefaultRegisterSize
	}

	id := t.add(node{
		kind:        KindPeripheral,
		name:        opts.Name,
		description: opts.Description,
		parent:      NoNode,
		offset:      opts.BaseAddress,
		bits:        opts.Size,
		length:      opts.TotalLength,
		access:      opts.Access,
		resetValue:  opts.ResetValue,
		group:       opts.Group,
	})
	t.peripherals = append(t.peripherals, id)
	return id
}

func (t *Tree) AddCluster(parent NodeID, opts ClusterOptions) NodeID {
	p := t.node(parent)
	if p.kind != KindPeripheral && p.kind != KindCluster {
		panic(fmt.Sprintf("cluster %s added to %s %s", opts.Name, p.kind, p.name))
	}

	n := node{
		kind:        KindCluster,
		name:        opts.Name,
		description: opts.Description,
		parent:      parent,
		offset:      opts.AddressOffset,
		bits:        opts.Size,
		access:      opts.Access,
		resetValue:  p.resetValue,
	}
	inherit(&n, p, opts.ResetValue)

	id := t.add(n)
	t.addChild(parent, id)
	return id
}

func (t *Tree) AddRegister(parent NodeID, opts RegisterOptions) NodeID {
	p := t.node(parent)
	if p.kind != KindPeripheral && p.kind != KindCluster {
		panic(fmt.Sprintf("register %s added to %s %s", opts.Name, p.kind, p.name))
	}

	n := node{
		kind:        KindRegister,
		name:        opts.Name,
		description: opts.Description,
		parent:      parent,
		offset:      opts.AddressOffset,
		bits:        opts.Size,
		access:      opts.Access,
		resetValue:  p.resetValue,
	}
	inherit(&n, p, opts.ResetValue)

	// The current value starts as the reset value
	n.value = n.resetValue
	n.known = true

	id := t.add(n)
	t.addChild(parent, id)
	return id
}

func (t *Tree) AddField(parent NodeID, opts FieldOptions) (NodeID, error) {
	p := t.node(parent)
	if p.kind != KindRegister {
		panic(fmt.Sprintf("field %s added to %s %s", opts.Name, p.kind, p.name))
	}

	if opts.BitWidth == 0 {
		return NoNode, fmt.Errorf("%w: field %q of register %q has no bits", ErrFieldRange, opts.Name, p.name)
	}
	if uint64(opts.BitOffset)+uint64(opts.BitWidth) > uint64(p.bits) {
		return NoNode, fmt.Errorf("%w: field %q of register %q covers bits [%d:%d] of a %d-bit register",
			ErrFieldRange, opts.Name, p.name, uint64(opts.BitOffset)+uint64(opts.BitWidth)-1, opts.BitOffset, p.bits)
	}

	access := opts.Access
	if access == AccessDefault {
		access = p.access
	}

	id := t.add(node{
		kind:        KindField,
		name:        opts.Name,
		description: opts.Description,
		parent:      parent,
		offset:      opts.BitOffset,
		bits:        opts.BitWidth,
		access:      access,
		enum:        slices.Clone(opts.Enumeration),
	})
	t.addChild(parent, id)
	return id, nil
}

func inherit(n *node, p *node, resetValue *uint32) {
	if n.access == AccessDefault {
		n.access = p.access
	}
	if n.bits == 0 {
		n.bits = p.bits
	}
	if resetValue != nil {
		n.resetValue = *resetValue
	}
}

func (t *Tree) add(n node) NodeID {
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// addChild keeps children ordered by offset. Equal offsets keep insertion
// order.
func (t *Tree) addChild(parent, child NodeID) {
	p := t.node(parent)
	offset := t.nodes[child].offset
	i := len(p.children)
	for i > 0 && t.nodes[p.children[i-1]].offset > offset {
		i--
	}
	p.children = slices.Insert(p.children, i, child)
}

func (t *Tree) node(id NodeID) *node {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(fmt.Sprintf("%v: %d", ErrUnknownNode, id))
	}
	return &t.nodes[id]
}

// Valid reports whether id addresses a node of this tree.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

// Peripherals returns the peripherals in display order.
func (t *Tree) Peripherals() []NodeID {
	return slices.Clone(t.peripherals)
}

// SortPeripherals orders pinned peripherals first, then by name.
func (t *Tree) SortPeripherals() {
	slices.SortStableFunc(t.peripherals, func(a, b NodeID) int {
		pa, pb := t.node(a), t.node(b)
		if pa.pinned != pb.pinned {
			if pa.pinned {
				return -1
			}
			return 1
		}
		return strings.Compare(pa.name, pb.name)
	})
}

func (t *Tree) Kind(id NodeID) Kind                     { return t.node(id).kind }
func (t *Tree) Name(id NodeID) string                   { return t.node(id).name }
func (t *Tree) Description(id NodeID) string            { return t.node(id).description }
func (t *Tree) Parent(id NodeID) NodeID                 { return t.node(id).parent }
func (t *Tree) Children(id NodeID) []NodeID             { return slices.Clone(t.node(id).children) }
func (t *Tree) Access(id NodeID) AccessType             { return t.node(id).access }
func (t *Tree) ResetValue(id NodeID) uint32             { return t.node(id).resetValue }
func (t *Tree) Group(id NodeID) string                  { return t.node(id).group }
func (t *Tree) Expanded(id NodeID) bool                 { return t.node(id).expanded }
func (t *Tree) Pinned(id NodeID) bool                   { return t.node(id).pinned }
func (t *Tree) Format(id NodeID) Format                 { return t.node(id).format }
func (t *Tree) Enumeration(id NodeID) []EnumeratedValue { return slices.Clone(t.node(id).enum) }

// Offset is the address offset from the parent for clusters and registers,
// the bit offset for fields and the base address for peripherals.
func (t *Tree) Offset(id NodeID) uint32 { return t.node(id).offset }

// Width is the register size or field width in bits.
func (t *Tree) Width(id NodeID) uint32 { return t.node(id).bits }

// TotalLength is the address block length of a peripheral in bytes.
func (t *Tree) TotalLength(id NodeID) uint32 { return t.node(id).length }

func (t *Tree) SetExpanded(id NodeID, expanded bool) { t.node(id).expanded = expanded }
func (t *Tree) SetFormat(id NodeID, format Format)   { t.node(id).format = format }

// SetPinned pins a peripheral and restores the display order.
func (t *Tree) SetPinned(id NodeID, pinned bool) {
	n := t.node(id)
	if n.kind != KindPeripheral {
		return
	}
	n.pinned = pinned
	t.SortPeripherals()
}

// Value returns the raw value of a register or the extracted bits of a field.
// The second result is false while the value is unknown.
func (t *Tree) Value(id NodeID) (uint32, bool) {
	n := t.node(id)
	switch n.kind {
	case KindRegister:
		return n.value, n.known
	case KindField:
		r := t.node(n.parent)
		return bitutil.ExtractBits(r.value, n.offset, n.bits), r.known
	default:
		return 0, false
	}
}

// PeripheralOf walks up to the owning peripheral.
func (t *Tree) PeripheralOf(id NodeID) NodeID {
	for t.node(id).kind != KindPeripheral {
		id = t.node(id).parent
	}
	return id
}

// RegisterOf returns the register itself or the register owning a field.
func (t *Tree) RegisterOf(id NodeID) NodeID {
	n := t.node(id)
	switch n.kind {
	case KindRegister:
		return id
	case KindField:
		return n.parent
	default:
		return NoNode
	}
}

// Address resolves the absolute address of a node. Fields resolve to their
// register.
func (t *Tree) Address(id NodeID) uint32 {
	n := t.node(id)
	switch n.kind {
	case KindPeripheral:
		return n.offset
	case KindField:
		return t.Address(n.parent)
	default:
		return t.Address(n.parent) + n.offset
	}
}

// byteOffset is the offset of a cluster or register from its peripheral.
func (t *Tree) byteOffset(id NodeID) uint32 {
	var offset uint32
	for n := t.node(id); n.kind != KindPeripheral; n = t.node(n.parent) {
		if n.kind != KindField {
			offset += n.offset
		}
	}
	return offset
}

// checkSpan verifies that a register ends inside the 32-bit address space and
// within MaxPeripheralSpan of its peripheral base.
func (t *Tree) checkSpan(id NodeID) error {
	n := t.node(id)
	end := uint64((n.bits + 7) / 8)
	for cur := n; cur.kind != KindPeripheral; cur = t.node(cur.parent) {
		end += uint64(cur.offset)
	}

	base := uint64(t.node(t.PeripheralOf(id)).offset)
	switch {
	case base+end > 1<<32:
		return fmt.Errorf("%w: %s ends past the 32-bit address space", ErrAddressRange, t.Path(id))
	case end > MaxPeripheralSpan:
		return fmt.Errorf("%w: %s ends %#x bytes past the base address", ErrAddressRange, t.Path(id), end)
	}
	return nil
}

// Path returns the dotted name path of a node.
func (t *Tree) Path(id NodeID) string {
	var parts []string
	for id != NoNode {
		n := t.node(id)
		parts = append(parts, n.name)
		id = n.parent
	}
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}

// FindByPath matches segments against child names starting below id. An
// empty segment list yields id itself; any miss yields NoNode.
func (t *Tree) FindByPath(id NodeID, segments []string) NodeID {
	if len(segments) == 0 {
		return id
	}
	for _, child := range t.node(id).children {
		if t.nodes[child].name == segments[0] {
			return t.FindByPath(child, segments[1:])
		}
	}
	return NoNode
}

// Find resolves a dotted path such as "UART0.CTRL.ENABLE".
func (t *Tree) Find(path string) NodeID {
	if len(path) == 0 {
		return NoNode
	}
	segments := strings.Split(path, ".")
	for _, p := range t.peripherals {
		if t.nodes[p].name == segments[0] {
			return t.FindByPath(p, segments[1:])
		}
	}
	return NoNode
}

// SaveState collects the settings of id and its descendants that differ from
// the defaults. prefix is the dotted path of the parent.
func (t *Tree) SaveState(id NodeID, prefix string) []Setting {
	n := t.node(id)
	path := n.name
	if len(prefix) > 0 {
		path = prefix + "." + n.name
	}

	var result []Setting
	if n.format != Auto || n.expanded || n.pinned {
		result = append(result, Setting{
			Node:     path,
			Expanded: n.expanded,
			Pinned:   n.pinned,
			Format:   n.format,
		})
	}
	for _, child := range n.children {
		result = append(result, t.SaveState(child, path)...)
	}
	return result
}

// SaveAll collects the settings of every peripheral.
func (t *Tree) SaveAll() []Setting {
	var result []Setting
	for _, p := range t.peripherals {
		result = append(result, t.SaveState(p, "")...)
	}
	return result
}

// Restore applies settings by path. Settings naming nodes that no longer
// exist are skipped and counted.
func (t *Tree) Restore(settings []Setting) (skipped int) {
	for _, s := range settings {
		id := t.Find(s.Node)
		if id == NoNode {
			skipped++
			continue
		}
		n := t.node(id)
		n.expanded = s.Expanded
		n.format = s.Format
		if n.kind == KindPeripheral {
			n.pinned = s.Pinned
		}
	}
	t.SortPeripherals()
	return skipped
}

// Invalidate marks every register of a peripheral unknown until the next
// successful read.
func (t *Tree) Invalidate(peripheral NodeID) {
	p := t.node(peripheral)
	p.window = nil
	t.walk(peripheral, func(id NodeID, n *node) {
		if n.kind == KindRegister {
			n.known = false
		}
	})
}

func (t *Tree) walk(id NodeID, fn func(NodeID, *node)) {
	fn(id, t.node(id))
	for _, child := range t.node(id).children {
		t.walk(child, fn)
	}
}

func (t *Tree) logf(format string, args ...any) {
	if t.options.Logf != nil {
		t.options.Logf(format, args...)
	}
}
