package peripheral

import (
	"fmt"

	"gonum.org/v1/gonum/graph/multi"
	"gonum.org/v1/gonum/graph/topo"

	"omibyte.io/regview/svd"
)

type peripheralNode struct {
	index int
}

func (p peripheralNode) ID() int64 {
	return int64(p.index)
}

// resolvePeripherals merges every derived peripheral with its base. Bases are
// resolved before the peripherals deriving from them, so chains resolve in
// any document order. The result keeps document order.
func resolvePeripherals(elements []svd.PeripheralElement) ([]svd.PeripheralElement, error) {
	byName := map[string]int{}
	for i, p := range elements {
		byName[p.Name] = i
	}

	// Create a directed graph from each base to the peripherals deriving from it
	graph := multi.NewDirectedGraph()
	for i := range elements {
		graph.AddNode(peripheralNode{i})
	}
	for i, p := range elements {
		if len(p.DerivedFrom) == 0 {
			continue
		}
		base, ok := byName[p.DerivedFrom]
		if !ok {
			return nil, fmt.Errorf("%w: invalid derivedFrom %q for peripheral %q", ErrParse, p.DerivedFrom, p.Name)
		}
		if base == i {
			return nil, fmt.Errorf("%w: peripheral %q derives from itself", ErrParse, p.Name)
		}
		graph.SetLine(graph.NewLine(peripheralNode{base}, peripheralNode{i}))
	}

	sorted, err := topo.Sort(graph)
	if err != nil {
		return nil, fmt.Errorf("%w: circular derivedFrom between peripherals: %v", ErrParse, err)
	}

	resolved := make([]svd.PeripheralElement, len(elements))
	copy(resolved, elements)
	for _, n := range sorted {
		i := int(n.ID())
		p := resolved[i]
		if len(p.DerivedFrom) == 0 {
			continue
		}
		resolved[i] = mergePeripheral(resolved[byName[p.DerivedFrom]], p)
	}
	return resolved, nil
}

// The merge functions overlay the deriving element on its base: anything the
// deriving element declares wins, anything it leaves out comes from the base.

func mergePeripheral(base, p svd.PeripheralElement) svd.PeripheralElement {
	merged := p
	merged.DerivedFrom = ""
	if len(merged.Description) == 0 {
		merged.Description = base.Description
	}
	if len(merged.Group) == 0 {
		merged.Group = base.Group
	}
	if merged.BaseAddress == nil {
		merged.BaseAddress = base.BaseAddress
	}
	if len(merged.AddressBlocks) == 0 {
		merged.AddressBlocks = base.AddressBlocks
	}
	if len(merged.Interrupts) == 0 {
		merged.Interrupts = base.Interrupts
	}
	if len(merged.Access) == 0 {
		merged.Access = base.Access
	}
	if merged.Size == nil {
		merged.Size = base.Size
	}
	if merged.ResetValue == nil {
		merged.ResetValue = base.ResetValue
	}
	if merged.Registers == nil {
		merged.Registers = base.Registers
	}
	return merged
}

func mergeDim(base, d svd.DimElement) svd.DimElement {
	if d.Count == nil {
		d.Count = base.Count
	}
	if d.Increment == nil {
		d.Increment = base.Increment
	}
	if len(d.Index) == 0 {
		d.Index = base.Index
	}
	return d
}

func mergeRegister(base, r svd.RegisterElement) svd.RegisterElement {
	merged := r
	merged.DerivedFrom = ""
	merged.DimElement = mergeDim(base.DimElement, r.DimElement)
	if len(merged.Description) == 0 {
		merged.Description = base.Description
	}
	if merged.AddressOffset == nil {
		merged.AddressOffset = base.AddressOffset
	}
	if merged.Size == nil {
		merged.Size = base.Size
	}
	if len(merged.Access) == 0 {
		merged.Access = base.Access
	}
	if merged.ResetValue == nil {
		merged.ResetValue = base.ResetValue
	}
	if len(merged.Fields) == 0 {
		merged.Fields = base.Fields
	}
	return merged
}

func mergeCluster(base, c svd.ClusterElement) svd.ClusterElement {
	merged := c
	merged.DerivedFrom = ""
	merged.DimElement = mergeDim(base.DimElement, c.DimElement)
	if len(merged.Description) == 0 {
		merged.Description = base.Description
	}
	if merged.AddressOffset == nil {
		merged.AddressOffset = base.AddressOffset
	}
	if len(merged.Access) == 0 {
		merged.Access = base.Access
	}
	if merged.Size == nil {
		merged.Size = base.Size
	}
	if merged.ResetValue == nil {
		merged.ResetValue = base.ResetValue
	}
	if len(merged.Registers) == 0 {
		merged.Registers = base.Registers
	}
	if len(merged.Clusters) == 0 {
		merged.Clusters = base.Clusters
	}
	return merged
}

func mergeField(base, f svd.FieldElement) svd.FieldElement {
	merged := f
	merged.DerivedFrom = ""
	merged.DimElement = mergeDim(base.DimElement, f.DimElement)
	if len(merged.Description) == 0 {
		merged.Description = base.Description
	}
	// The bit position is taken as a whole so that mixed notations do not
	// combine
	if f.BitOffset == nil && f.BitWidth == nil && len(f.BitRange) == 0 && f.Msb == nil && f.Lsb == nil {
		merged.BitOffset, merged.BitWidth = base.BitOffset, base.BitWidth
		merged.BitRange = base.BitRange
		merged.Msb, merged.Lsb = base.Msb, base.Lsb
	}
	if len(merged.Access) == 0 {
		merged.Access = base.Access
	}
	if merged.EnumeratedValues == nil {
		merged.EnumeratedValues = base.EnumeratedValues
	}
	return merged
}
