package svd

type DeviceElement struct {
	Name             string             `xml:"name"`
	Description      string             `xml:"description"`
	Series           string             `xml:"series"`
	Version          string             `xml:"version"`
	Vendor           string             `xml:"vendor"`
	CPU              CPUElement         `xml:"cpu"`
	AddressableWidth *Integer           `xml:"addressUnitBits"`
	BitWidth         *Integer           `xml:"width"`
	Size             *Integer           `xml:"size"`
	Access           string             `xml:"access"`
	ResetValue       *Integer           `xml:"resetValue"`
	ResetMask        *Integer           `xml:"resetMask"`
	Peripherals      PeripheralsElement `xml:"peripherals"`
}

type CPUElement struct {
	Name     string `xml:"name"`
	Revision string `xml:"revision"`
	Endian   string `xml:"endian"`
}

type PeripheralsElement struct {
	Elements []PeripheralElement `xml:"peripheral"`
}

type PeripheralElement struct {
	DerivedFrom   string                `xml:"derivedFrom,attr"`
	Name          string                `xml:"name"`
	Description   string                `xml:"description"`
	Group         string                `xml:"groupName"`
	BaseAddress   *Integer              `xml:"baseAddress"`
	AddressBlocks []AddressBlockElement `xml:"addressBlock"`
	Interrupts    []InterruptElement    `xml:"interrupt"`
	Access        string                `xml:"access"`
	Size          *Integer              `xml:"size"`
	ResetValue    *Integer              `xml:"resetValue"`
	Registers     *RegistersElement     `xml:"registers"`
}

type AddressBlockElement struct {
	Offset Integer `xml:"offset"`
	Size   Integer `xml:"size"`
	Usage  string  `xml:"usage"`
}

type InterruptElement struct {
	Name        string  `xml:"name"`
	Description string  `xml:"description"`
	Value       Integer `xml:"value"`
}

type RegistersElement struct {
	RegisterElements []RegisterElement `xml:"register"`
	ClusterElements  []ClusterElement  `xml:"cluster"`
}

// DimElement holds the repetition attributes shared by clusters, registers
// and fields.
type DimElement struct {
	Count     *Integer `xml:"dim"`
	Increment *Integer `xml:"dimIncrement"`
	Index     string   `xml:"dimIndex"`
}

type ClusterElement struct {
	DerivedFrom string `xml:"derivedFrom,attr"`
	DimElement
	Name          string            `xml:"name"`
	Description   string            `xml:"description"`
	AddressOffset *Integer          `xml:"addressOffset"`
	Access        string            `xml:"access"`
	Size          *Integer          `xml:"size"`
	ResetValue    *Integer          `xml:"resetValue"`
	Registers     []RegisterElement `xml:"register"`
	Clusters      []ClusterElement  `xml:"cluster"`
}

type RegisterElement struct {
	DerivedFrom string `xml:"derivedFrom,attr"`
	DimElement
	Name          string          `xml:"name"`
	Description   string          `xml:"description"`
	AddressOffset *Integer        `xml:"addressOffset"`
	Size          *Integer        `xml:"size"`
	Access        string          `xml:"access"`
	ResetValue    *Integer        `xml:"resetValue"`
	Alternative   string          `xml:"alternateRegister"`
	Fields        []FieldElements `xml:"fields"`
}

type FieldElements struct {
	Elements []FieldElement `xml:"field"`
}

type FieldElement struct {
	DerivedFrom string `xml:"derivedFrom,attr"`
	DimElement
	Name             string                   `xml:"name"`
	Description      string                   `xml:"description"`
	BitOffset        *Integer                 `xml:"bitOffset"`
	BitWidth         *Integer                 `xml:"bitWidth"`
	BitRange         string                   `xml:"bitRange"`
	Msb              *Integer                 `xml:"msb"`
	Lsb              *Integer                 `xml:"lsb"`
	Access           string                   `xml:"access"`
	EnumeratedValues *EnumeratedValuesElement `xml:"enumeratedValues"`
}

type EnumeratedValuesElement struct {
	DerivedFrom string                   `xml:"derivedFrom,attr"`
	Name        string                   `xml:"name"`
	Usage       string                   `xml:"usage"`
	Elements    []EnumeratedValueElement `xml:"enumeratedValue"`
}

type EnumeratedValueElement struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	// Value may contain don't-care bits ("0b1x0"), so it is kept as text.
	Value     string `xml:"value"`
	IsDefault bool   `xml:"isDefault"`
}
