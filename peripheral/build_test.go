package peripheral

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"omibyte.io/regview/svd"
)

const uartDevice = `<?xml version="1.0" encoding="utf-8"?>
<device schemaVersion="1.3">
  <name>TESTCHIP</name>
  <size>32</size>
  <access>read-write</access>
  <resetValue>0x00000000</resetValue>
  <peripherals>
    <peripheral>
      <name>UART0</name>
      <description>Universal
        asynchronous transmitter</description>
      <groupName>UART</groupName>
      <baseAddress>0x40001000</baseAddress>
      <addressBlock>
        <offset>0</offset>
        <size>0x400</size>
        <usage>registers</usage>
      </addressBlock>
      <registers>
        <register>
          <name>STATUS</name>
          <addressOffset>0x4</addressOffset>
          <access>read-only</access>
          <resetValue>0x1</resetValue>
          <fields>
            <field>
              <name>BUSY</name>
              <bitOffset>0</bitOffset>
              <bitWidth>1</bitWidth>
            </field>
          </fields>
        </register>
        <register>
          <name>CTRL</name>
          <description>Control</description>
          <addressOffset>0x0</addressOffset>
          <resetValue>0xABCD1234</resetValue>
          <fields>
            <field>
              <name>MODE</name>
              <bitRange>[7:4]</bitRange>
              <enumeratedValues>
                <name>ModeValues</name>
                <enumeratedValue>
                  <name>OFF</name>
                  <value>0</value>
                </enumeratedValue>
                <enumeratedValue>
                  <name>FAST</name>
                  <value>0xF</value>
                </enumeratedValue>
                <enumeratedValue>
                  <name>MATCH</name>
                  <value>0b1x00</value>
                </enumeratedValue>
              </enumeratedValues>
            </field>
            <field>
              <name>ENABLE</name>
              <lsb>0</lsb>
              <msb>0</msb>
            </field>
            <field>
              <name>BAUD</name>
              <bitOffset>16</bitOffset>
              <bitWidth>16</bitWidth>
            </field>
          </fields>
        </register>
        <register>
          <name>DATA</name>
          <addressOffset>0x8</addressOffset>
          <size>8</size>
          <access>write-only</access>
        </register>
      </registers>
    </peripheral>
    <peripheral derivedFrom="UART0">
      <name>UART1</name>
      <baseAddress>0x40002000</baseAddress>
    </peripheral>
    <peripheral>
      <name>ADC</name>
      <baseAddress>0x40010000</baseAddress>
      <registers>
        <register>
          <name>CH%s</name>
          <description>Channel %s result</description>
          <addressOffset>0x10</addressOffset>
          <dim>4</dim>
          <dimIncrement>4</dimIncrement>
          <dimIndex>A-D</dimIndex>
          <access>read-only</access>
        </register>
        <register derivedFrom="UART0.CTRL">
          <name>CTRL</name>
          <addressOffset>0x0</addressOffset>
        </register>
        <register derivedFrom="CTRL">
          <name>CTRL2</name>
          <addressOffset>0x4</addressOffset>
          <resetValue>0x5</resetValue>
        </register>
        <cluster>
          <name>SEQ[%s]</name>
          <addressOffset>0x100</addressOffset>
          <dim>2</dim>
          <dimIncrement>0x20</dimIncrement>
          <register>
            <name>CFG</name>
            <addressOffset>0x8</addressOffset>
            <size>16</size>
          </register>
        </cluster>
      </registers>
    </peripheral>
  </peripherals>
</device>`

func TestBuild(t *testing.T) {
	tree := buildTree(t, uartDevice, Options{})

	var names []string
	for _, p := range tree.Peripherals() {
		names = append(names, tree.Name(p))
	}
	if diff := cmp.Diff([]string{"ADC", "UART0", "UART1"}, names); diff != "" {
		t.Errorf("peripheral order mismatch (-want +got):\n%s", diff)
	}

	uart := mustFind(t, tree, "UART0")
	if got := tree.Description(uart); got != "Universal asynchronous transmitter" {
		t.Errorf("description = %q", got)
	}
	if got := tree.TotalLength(uart); got != 0x400 {
		t.Errorf("total length = %#x, expected 0x400", got)
	}
	if got := tree.Group(uart); got != "UART" {
		t.Errorf("group = %q", got)
	}

	var children []string
	for _, c := range tree.Children(uart) {
		children = append(children, tree.Name(c))
	}
	if diff := cmp.Diff([]string{"CTRL", "STATUS", "DATA"}, children); diff != "" {
		t.Errorf("register order mismatch (-want +got):\n%s", diff)
	}

	var fields []string
	for _, c := range tree.Children(mustFind(t, tree, "UART0.CTRL")) {
		fields = append(fields, tree.Name(c))
	}
	if diff := cmp.Diff([]string{"ENABLE", "MODE", "BAUD"}, fields); diff != "" {
		t.Errorf("field order mismatch (-want +got):\n%s", diff)
	}

	mode := mustFind(t, tree, "UART0.CTRL.MODE")
	if tree.Offset(mode) != 4 || tree.Width(mode) != 4 {
		t.Errorf("MODE covers [%d+%d], expected [4+4]", tree.Offset(mode), tree.Width(mode))
	}
	expected := []EnumeratedValue{{Name: "OFF", Value: 0}, {Name: "FAST", Value: 0xF}}
	if diff := cmp.Diff(expected, tree.Enumeration(mode)); diff != "" {
		t.Errorf("enumeration mismatch (-want +got):\n%s", diff)
	}

	status := mustFind(t, tree, "UART0.STATUS")
	if tree.Access(status) != ReadOnly {
		t.Errorf("STATUS access = %s", tree.Access(status))
	}
	if busy := mustFind(t, tree, "UART0.STATUS.BUSY"); tree.Access(busy) != ReadOnly {
		t.Errorf("BUSY does not inherit read-only access")
	}
	if data := mustFind(t, tree, "UART0.DATA"); tree.Width(data) != 8 {
		t.Errorf("DATA width = %d, expected 8", tree.Width(data))
	}
}

func TestBuildDerivedPeripheral(t *testing.T) {
	tree := buildTree(t, uartDevice, Options{})

	uart1 := mustFind(t, tree, "UART1")
	if got := tree.Address(uart1); got != 0x40002000 {
		t.Errorf("UART1 base = %#x", got)
	}
	if got := tree.Description(uart1); got != "Universal asynchronous transmitter" {
		t.Errorf("UART1 does not inherit the description: %q", got)
	}
	if got := tree.TotalLength(uart1); got != 0x400 {
		t.Errorf("UART1 does not inherit the address block: %#x", got)
	}

	ctrl := mustFind(t, tree, "UART1.CTRL")
	if got := tree.Address(ctrl); got != 0x40002000 {
		t.Errorf("UART1.CTRL address = %#x", got)
	}
	if tree.Find("UART1.CTRL.MODE") == NoNode {
		t.Errorf("UART1.CTRL has no MODE field")
	}
}

func TestBuildDerivedRegister(t *testing.T) {
	tree := buildTree(t, uartDevice, Options{})

	ctrl := mustFind(t, tree, "ADC.CTRL")
	if got := tree.ResetValue(ctrl); got != 0xABCD1234 {
		t.Errorf("ADC.CTRL reset = %#x, expected the value of UART0.CTRL", got)
	}
	if got := tree.Description(ctrl); got != "Control" {
		t.Errorf("ADC.CTRL description = %q", got)
	}

	ctrl2 := mustFind(t, tree, "ADC.CTRL2")
	if got := tree.ResetValue(ctrl2); got != 0x5 {
		t.Errorf("ADC.CTRL2 reset = %#x, expected its own 0x5", got)
	}
	if got := tree.Address(ctrl2); got != 0x40010004 {
		t.Errorf("ADC.CTRL2 address = %#x", got)
	}
	if tree.Find("ADC.CTRL2.BAUD") == NoNode {
		t.Errorf("ADC.CTRL2 does not inherit its fields")
	}
}

func TestBuildDim(t *testing.T) {
	tree := buildTree(t, uartDevice, Options{})

	for i, name := range []string{"CHA", "CHB", "CHC", "CHD"} {
		id := mustFind(t, tree, "ADC."+name)
		if got, want := tree.Address(id), uint32(0x40010010+4*i); got != want {
			t.Errorf("%s address = %#x, expected %#x", name, got, want)
		}
		if got, want := tree.Description(id), "Channel "+name[2:]+" result"; got != want {
			t.Errorf("%s description = %q, expected %q", name, got, want)
		}
	}

	for i, name := range []string{"SEQ[0]", "SEQ[1]"} {
		cfg := tree.FindByPath(mustFind(t, tree, "ADC"), []string{name, "CFG"})
		if cfg == NoNode {
			t.Fatalf("%s.CFG not found", name)
		}
		if got, want := tree.Address(cfg), uint32(0x40010108+0x20*i); got != want {
			t.Errorf("%s.CFG address = %#x, expected %#x", name, got, want)
		}
		if tree.Width(cfg) != 16 {
			t.Errorf("%s.CFG width = %d", name, tree.Width(cfg))
		}
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name      string
		registers string
		extra     string
		mention   string
	}{
		{
			name:      "missingRegisterBase",
			registers: `<register derivedFrom="NOPE"><name>CTRL</name><addressOffset>0</addressOffset></register>`,
			mention:   `"CTRL"`,
		},
		{
			name:      "missingDimIncrement",
			registers: `<register><name>R%s</name><addressOffset>0</addressOffset><dim>2</dim></register>`,
			mention:   "dimIncrement",
		},
		{
			name:      "badDimIndex",
			registers: `<register><name>R%s</name><addressOffset>0</addressOffset><dim>5</dim><dimIncrement>4</dimIncrement><dimIndex>0-2</dimIndex></register>`,
			mention:   `"R%s"`,
		},
		{
			name: "fieldOutsideRegister",
			registers: `<register><name>R</name><addressOffset>0</addressOffset><size>8</size>
				<fields><field><name>F</name><bitOffset>6</bitOffset><bitWidth>4</bitWidth></field></fields></register>`,
			mention: `"F"`,
		},
		{
			name:      "unknownAccess",
			registers: `<register><name>R</name><addressOffset>0</addressOffset><access>sometimes</access></register>`,
			mention:   "sometimes",
		},
		{
			name:      "missingAddressOffset",
			registers: `<register><name>R</name></register>`,
			mention:   "addressOffset",
		},
		{
			name:    "missingPeripheralBase",
			extra:   `<peripheral derivedFrom="GHOST"><name>P2</name></peripheral>`,
			mention: `"P2"`,
		},
		{
			name: "circularPeripherals",
			extra: `<peripheral derivedFrom="P3"><name>P2</name></peripheral>
				<peripheral derivedFrom="P2"><name>P3</name></peripheral>`,
			mention: "circular",
		},
		{
			name:      "farRegister",
			registers: `<register><name>FAR</name><addressOffset>0x40000000</addressOffset></register>`,
			mention:   "P.FAR",
		},
		{
			name: "wrappedRegister",
			extra: `<peripheral><name>TOP</name><baseAddress>0xFFFFFFFC</baseAddress><registers>
				<register><name>WRAP</name><addressOffset>0x8</addressOffset></register></registers></peripheral>`,
			mention: "TOP.WRAP",
		},
		{
			name:    "selfDerivedPeripheral",
			extra:   `<peripheral derivedFrom="P2"><name>P2</name></peripheral>`,
			mention: `"P2"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			document := `<device><name>D</name><peripherals>
				<peripheral><name>P</name><baseAddress>0x1000</baseAddress><registers>` +
				tc.registers + `</registers></peripheral>` + tc.extra + `</peripherals></device>`

			dev, err := svd.Decode(strings.NewReader(document))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			_, err = Build(dev, Options{})
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.mention) {
				t.Errorf("error %q does not mention %s", err, tc.mention)
			}
		})
	}
}
