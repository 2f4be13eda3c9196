package peripheral

import (
	"context"
	"strings"
)

// NodeID addresses a node inside a Tree.
type NodeID int32

const NoNode NodeID = -1

type Kind uint8

const (
	KindPeripheral Kind = iota
	KindCluster
	KindRegister
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindPeripheral:
		return "peripheral"
	case KindCluster:
		return "cluster"
	case KindRegister:
		return "register"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

type AccessType uint8

const (
	// AccessDefault inherits the access type of the parent.
	AccessDefault AccessType = iota
	ReadWrite
	ReadOnly
	WriteOnly
	WriteOnce
	ReadWriteOnce
)

// ParseAccess maps the SVD access strings. Unknown strings report false.
func ParseAccess(s string) (AccessType, bool) {
	switch strings.TrimSpace(s) {
	case "":
		return AccessDefault, true
	case "read-write":
		return ReadWrite, true
	case "read-only":
		return ReadOnly, true
	case "write-only":
		return WriteOnly, true
	case "writeOnce":
		return WriteOnce, true
	case "read-writeOnce":
		return ReadWriteOnce, true
	default:
		return AccessDefault, false
	}
}

func (a AccessType) CanRead() bool {
	return a != WriteOnly && a != WriteOnce
}

func (a AccessType) CanWrite() bool {
	return a != ReadOnly
}

func (a AccessType) String() string {
	switch a {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case WriteOnce:
		return "writeOnce"
	case ReadWriteOnce:
		return "read-writeOnce"
	default:
		return "default"
	}
}

// Format is the numeric display base of a node. Auto defers to the parent.
type Format uint8

const (
	Auto Format = iota
	Hexadecimal
	Decimal
	Binary
)

func (f Format) String() string {
	switch f {
	case Auto:
		return "auto"
	case Hexadecimal:
		return "hex"
	case Decimal:
		return "decimal"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return Auto, true
	case "hex", "hexadecimal":
		return Hexadecimal, true
	case "dec", "decimal":
		return Decimal, true
	case "bin", "binary":
		return Binary, true
	}
	return Auto, false
}

type EnumeratedValue struct {
	Name        string
	Description string
	Value       uint32
}

// MemoryChannel is the debug session transport. Addresses are 0x-prefixed
// hex strings and written data is a hex encoded byte string.
type MemoryChannel interface {
	ReadMemory(ctx context.Context, address string, length int) ([]byte, error)
	WriteMemory(ctx context.Context, address string, data string) error
}

// Setting is the persisted display state of one node.
type Setting struct {
	Node     string `json:"node"`
	Expanded bool   `json:"expanded,omitempty"`
	Pinned   bool   `json:"pinned,omitempty"`
	Format   Format `json:"format,omitempty"`
}
