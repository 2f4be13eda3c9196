package peripheral

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"omibyte.io/regview/bitutil"
	"omibyte.io/regview/svd"
)

var bitRangeRegexp = regexp.MustCompile(`^\[\s*(\d+)\s*:\s*(\d+)\s*\]$`)

type builder struct {
	tree *Tree

	// registers and clusters hold every element built so far, keyed by the
	// dotted path of their first instance ("UART0.CTRL").
	registers map[string]svd.RegisterElement
	clusters  map[string]svd.ClusterElement
	enums     map[string][]EnumeratedValue

	access     AccessType
	size       uint32
	resetValue uint32
}

// Build constructs the peripheral tree of a decoded device description. Any
// error aborts the whole build and wraps ErrParse.
func Build(dev *svd.DeviceElement, options Options) (*Tree, error) {
	access, ok := ParseAccess(dev.Access)
	if !ok {
		return nil, fmt.Errorf("%w: unknown access %q for device %q", ErrParse, dev.Access, dev.Name)
	}
	if access == AccessDefault {
		access = ReadWrite
	}

	b := builder{
		tree:       NewTree(options),
		registers:  map[string]svd.RegisterElement{},
		clusters:   map[string]svd.ClusterElement{},
		enums:      map[string][]EnumeratedValue{},
		access:     access,
		size:       dev.Size.Value(DefaultRegisterSize),
		resetValue: dev.ResetValue.Value(0),
	}

	peripherals, err := resolvePeripherals(dev.Peripherals.Elements)
	if err != nil {
		return nil, err
	}

	for _, p := range peripherals {
		if err := b.buildPeripheral(p); err != nil {
			return nil, err
		}
	}

	b.tree.SortPeripherals()
	return b.tree, nil
}

func (b *builder) buildPeripheral(p svd.PeripheralElement) error {
	if len(p.Name) == 0 {
		return fmt.Errorf("%w: peripheral without a name", ErrParse)
	}
	if p.BaseAddress == nil {
		return fmt.Errorf("%w: peripheral %q has no baseAddress", ErrParse, p.Name)
	}

	access, err := b.parseAccess(p.Access, "peripheral", p.Name)
	if err != nil {
		return err
	}
	if access == AccessDefault {
		access = b.access
	}

	// The total length covers every address block
	var length uint32
	for _, block := range p.AddressBlocks {
		if end := uint32(block.Offset) + uint32(block.Size); end > length {
			length = end
		}
	}

	id := b.tree.AddPeripheral(PeripheralOptions{
		Name:        p.Name,
		Description: bitutil.CleanupDescription(p.Description),
		Group:       p.Group,
		BaseAddress: uint32(*p.BaseAddress),
		TotalLength: length,
		Access:      access,
		Size:        p.Size.Value(b.size),
		ResetValue:  p.ResetValue.Value(b.resetValue),
	})

	if p.Registers == nil {
		return nil
	}
	return b.buildChildren(id, p.Name, p.Registers.RegisterElements, p.Registers.ClusterElements)
}

// buildChildren adds the registers and clusters of one level. prefix is the
// dotted path of the parent.
func (b *builder) buildChildren(parent NodeID, prefix string, registers []svd.RegisterElement, clusters []svd.ClusterElement) error {
	localRegisters := map[string]svd.RegisterElement{}
	for _, r := range registers {
		localRegisters[r.Name] = r
	}

	for _, r := range registers {
		resolved, err := b.resolveRegister(r, localRegisters, map[string]bool{})
		if err != nil {
			return err
		}
		if err := b.buildRegister(parent, prefix, resolved); err != nil {
			return err
		}
	}

	localClusters := map[string]svd.ClusterElement{}
	for _, c := range clusters {
		localClusters[c.Name] = c
	}

	for _, c := range clusters {
		resolved, err := b.resolveCluster(c, localClusters, map[string]bool{})
		if err != nil {
			return err
		}
		if err := b.buildCluster(parent, prefix, resolved); err != nil {
			return err
		}
	}
	return nil
}

// resolveRegister looks the base of a derived register up among its
// siblings first and among the registers of everything built earlier
// second.
func (b *builder) resolveRegister(r svd.RegisterElement, local map[string]svd.RegisterElement, visiting map[string]bool) (svd.RegisterElement, error) {
	if len(r.DerivedFrom) == 0 {
		return r, nil
	}
	if visiting[r.Name] {
		return r, fmt.Errorf("%w: circular derivedFrom for register %q", ErrParse, r.Name)
	}
	visiting[r.Name] = true

	base, ok := local[r.DerivedFrom]
	if !ok || r.DerivedFrom == r.Name {
		if base, ok = b.registers[r.DerivedFrom]; !ok {
			return r, fmt.Errorf("%w: invalid derivedFrom %q for register %q", ErrParse, r.DerivedFrom, r.Name)
		}
	} else {
		var err error
		if base, err = b.resolveRegister(base, local, visiting); err != nil {
			return r, err
		}
	}
	return mergeRegister(base, r), nil
}

func (b *builder) resolveCluster(c svd.ClusterElement, local map[string]svd.ClusterElement, visiting map[string]bool) (svd.ClusterElement, error) {
	if len(c.DerivedFrom) == 0 {
		return c, nil
	}
	if visiting[c.Name] {
		return c, fmt.Errorf("%w: circular derivedFrom for cluster %q", ErrParse, c.Name)
	}
	visiting[c.Name] = true

	base, ok := local[c.DerivedFrom]
	if !ok || c.DerivedFrom == c.Name {
		if base, ok = b.clusters[c.DerivedFrom]; !ok {
			return c, fmt.Errorf("%w: invalid derivedFrom %q for cluster %q", ErrParse, c.DerivedFrom, c.Name)
		}
	} else {
		var err error
		if base, err = b.resolveCluster(base, local, visiting); err != nil {
			return c, err
		}
	}
	return mergeCluster(base, c), nil
}

func (b *builder) buildRegister(parent NodeID, prefix string, r svd.RegisterElement) error {
	if r.AddressOffset == nil {
		return fmt.Errorf("%w: register %q of %s has no addressOffset", ErrParse, r.Name, prefix)
	}
	access, err := b.parseAccess(r.Access, "register", r.Name)
	if err != nil {
		return err
	}

	instances, err := expandDim("register", r.Name, r.Description, r.DimElement, uint32(*r.AddressOffset))
	if err != nil {
		return err
	}

	var fields []svd.FieldElement
	switch len(r.Fields) {
	case 0:
	case 1:
		fields = r.Fields[0].Elements
	default:
		b.tree.logf("register %s.%s declares %d field groups, ignoring its fields", prefix, r.Name, len(r.Fields))
	}

	for i, inst := range instances {
		opts := RegisterOptions{
			Name:          inst.name,
			Description:   bitutil.CleanupDescription(inst.description),
			AddressOffset: inst.offset,
			Access:        access,
			Size:          r.Size.Value(0),
		}
		if r.ResetValue != nil {
			v := uint32(*r.ResetValue)
			opts.ResetValue = &v
		}
		id := b.tree.AddRegister(parent, opts)
		if err := b.tree.checkSpan(id); err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}

		path := prefix + "." + inst.name
		b.registers[path] = r
		if i == 0 && inst.name != r.Name {
			b.registers[prefix+"."+r.Name] = r
		}

		if err := b.buildFields(id, path, fields); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buildCluster(parent NodeID, prefix string, c svd.ClusterElement) error {
	if c.AddressOffset == nil {
		return fmt.Errorf("%w: cluster %q of %s has no addressOffset", ErrParse, c.Name, prefix)
	}
	access, err := b.parseAccess(c.Access, "cluster", c.Name)
	if err != nil {
		return err
	}

	instances, err := expandDim("cluster", c.Name, c.Description, c.DimElement, uint32(*c.AddressOffset))
	if err != nil {
		return err
	}

	for i, inst := range instances {
		opts := ClusterOptions{
			Name:          inst.name,
			Description:   bitutil.CleanupDescription(inst.description),
			AddressOffset: inst.offset,
			Access:        access,
			Size:          c.Size.Value(0),
		}
		if c.ResetValue != nil {
			v := uint32(*c.ResetValue)
			opts.ResetValue = &v
		}
		id := b.tree.AddCluster(parent, opts)

		path := prefix + "." + inst.name
		b.clusters[path] = c
		if i == 0 && inst.name != c.Name {
			b.clusters[prefix+"."+c.Name] = c
		}

		if err := b.buildChildren(id, path, c.Registers, c.Clusters); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buildFields(register NodeID, prefix string, fields []svd.FieldElement) error {
	local := map[string]svd.FieldElement{}
	for _, f := range fields {
		local[f.Name] = f
	}

	for _, f := range fields {
		if len(f.DerivedFrom) > 0 {
			base, ok := local[f.DerivedFrom]
			if !ok || f.DerivedFrom == f.Name {
				return fmt.Errorf("%w: invalid derivedFrom %q for field %q of %s", ErrParse, f.DerivedFrom, f.Name, prefix)
			}
			f = mergeField(base, f)
		}

		offset, width, err := fieldBits(f)
		if err != nil {
			return fmt.Errorf("%w: field %q of %s: %v", ErrParse, f.Name, prefix, err)
		}
		access, err := b.parseAccess(f.Access, "field", f.Name)
		if err != nil {
			return err
		}
		enum, err := b.enumeration(prefix, f)
		if err != nil {
			return err
		}

		instances, err := expandDim("field", f.Name, f.Description, f.DimElement, offset)
		if err != nil {
			return err
		}
		for _, inst := range instances {
			_, err := b.tree.AddField(register, FieldOptions{
				Name:        inst.name,
				Description: bitutil.CleanupDescription(inst.description),
				BitOffset:   inst.offset,
				BitWidth:    width,
				Access:      access,
				Enumeration: enum,
			})
			if err != nil {
				return fmt.Errorf("%w: %w", ErrParse, err)
			}
		}
	}
	return nil
}

// fieldBits accepts the three ways a field can state its position.
func fieldBits(f svd.FieldElement) (offset, width uint32, err error) {
	switch {
	case f.BitOffset != nil:
		return uint32(*f.BitOffset), f.BitWidth.Value(1), nil
	case len(f.BitRange) > 0:
		m := bitRangeRegexp.FindStringSubmatch(strings.TrimSpace(f.BitRange))
		if m == nil {
			return 0, 0, fmt.Errorf("malformed bitRange %q", f.BitRange)
		}
		msb, _ := strconv.ParseUint(m[1], 10, 32)
		lsb, _ := strconv.ParseUint(m[2], 10, 32)
		if msb < lsb {
			return 0, 0, fmt.Errorf("bitRange %q has msb below lsb", f.BitRange)
		}
		return uint32(lsb), uint32(msb-lsb) + 1, nil
	case f.Msb != nil && f.Lsb != nil:
		if *f.Msb < *f.Lsb {
			return 0, 0, fmt.Errorf("msb %d below lsb %d", *f.Msb, *f.Lsb)
		}
		return uint32(*f.Lsb), uint32(*f.Msb-*f.Lsb) + 1, nil
	}
	return 0, 0, errors.New("no bit position")
}

// enumeration returns the values of a field and records them for later
// derivedFrom references. Values with don't-care bits and default entries
// cannot be matched against a single value and are left out.
func (b *builder) enumeration(prefix string, f svd.FieldElement) ([]EnumeratedValue, error) {
	ev := f.EnumeratedValues
	if ev == nil {
		return nil, nil
	}

	if len(ev.DerivedFrom) > 0 {
		values, ok := b.enums[ev.DerivedFrom]
		if !ok {
			return nil, fmt.Errorf("%w: invalid derivedFrom %q for enumeratedValues of field %s.%s", ErrParse, ev.DerivedFrom, prefix, f.Name)
		}
		return values, nil
	}

	var values []EnumeratedValue
	for _, e := range ev.Elements {
		if e.IsDefault {
			continue
		}
		v, ok := bitutil.ParseInteger(e.Value)
		if !ok {
			b.tree.logf("skipping enumerated value %s of %s.%s: cannot match %q", e.Name, prefix, f.Name, e.Value)
			continue
		}
		values = append(values, EnumeratedValue{
			Name:        e.Name,
			Description: bitutil.CleanupDescription(e.Description),
			Value:       v,
		})
	}

	if len(ev.Name) > 0 {
		path := prefix + "." + f.Name + "." + ev.Name
		b.enums[ev.Name] = values
		b.enums[path] = values
		// Register relative form "REG.FIELD.NAME"
		if i := strings.IndexByte(path, '.'); i >= 0 {
			b.enums[path[i+1:]] = values
		}
	}
	return values, nil
}

func (b *builder) parseAccess(s, kind, name string) (AccessType, error) {
	access, ok := ParseAccess(s)
	if !ok {
		return AccessDefault, fmt.Errorf("%w: unknown access %q for %s %q", ErrParse, s, kind, name)
	}
	return access, nil
}

type instance struct {
	name        string
	description string
	offset      uint32
}

// expandDim produces the instances of a repeated element. Elements without
// dim yield themselves. The index replaces the first "%s" of the name and the
// description; names without one get the index appended.
func expandDim(kind, name, description string, dim svd.DimElement, base uint32) ([]instance, error) {
	if dim.Count == nil {
		return []instance{{name: name, description: description, offset: base}}, nil
	}
	if dim.Increment == nil {
		return nil, fmt.Errorf("%w: %s %q has dim but no dimIncrement", ErrParse, kind, name)
	}

	count := int(*dim.Count)
	if count <= 0 {
		return nil, fmt.Errorf("%w: %s %q has dim %d", ErrParse, kind, name, count)
	}

	var indices []string
	if len(strings.TrimSpace(dim.Index)) > 0 {
		var err error
		if indices, err = bitutil.ParseDimIndex(dim.Index, count); err != nil {
			return nil, fmt.Errorf("%w: %s %q: %w", ErrParse, kind, name, err)
		}
	} else {
		indices = make([]string, count)
		for i := range indices {
			indices[i] = strconv.Itoa(i)
		}
	}

	increment := uint32(*dim.Increment)
	result := make([]instance, count)
	for i, index := range indices {
		result[i] = instance{
			name:        substitute(name, index),
			description: strings.Replace(description, "%s", index, 1),
			offset:      base + increment*uint32(i),
		}
	}
	return result, nil
}

func substitute(name, index string) string {
	if strings.Contains(name, "%s") {
		return strings.Replace(name, "%s", index, 1)
	}
	return name + index
}
