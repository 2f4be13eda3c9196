package peripheral

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"omibyte.io/regview/svd"
)

var errTarget = errors.New("target refused the request")

type readRequest struct {
	address uint32
	length  int
}

type writeRequest struct {
	address uint32
	data    string
}

// fakeChannel is a little-endian memory image. Requests starting at an
// address in failAt fail.
type fakeChannel struct {
	mu     sync.Mutex
	memory map[uint32]byte
	failAt map[uint32]bool
	reads  []readRequest
	writes []writeRequest

	failWrites bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		memory: map[uint32]byte{},
		failAt: map[uint32]bool{},
	}
}

func (c *fakeChannel) store32(address, value uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := uint32(0); i < 4; i++ {
		c.memory[address+i] = byte(value >> (8 * i))
	}
}

func (c *fakeChannel) load32(address uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var value uint32
	for i := uint32(0); i < 4; i++ {
		value |= uint32(c.memory[address+i]) << (8 * i)
	}
	return value
}

func parseAddress(address string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(address, "0x"), 16, 32)
	return uint32(v), err
}

func (c *fakeChannel) ReadMemory(ctx context.Context, address string, length int) ([]byte, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads = append(c.reads, readRequest{addr, length})
	if c.failAt[addr] {
		return nil, errTarget
	}

	data := make([]byte, length)
	for i := range data {
		data[i] = c.memory[addr+uint32(i)]
	}
	return data, nil
}

func (c *fakeChannel) WriteMemory(ctx context.Context, address string, data string) error {
	addr, err := parseAddress(address)
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errTarget
	}
	c.writes = append(c.writes, writeRequest{addr, data})
	for i, b := range raw {
		c.memory[addr+uint32(i)] = b
	}
	return nil
}

func buildTree(t *testing.T, document string, options Options) *Tree {
	t.Helper()
	dev, err := svd.Decode(strings.NewReader(document))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tree, err := Build(dev, options)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return tree
}

func mustFind(t *testing.T, tree *Tree, path string) NodeID {
	t.Helper()
	id := tree.Find(path)
	if id == NoNode {
		t.Fatalf("%s not found", path)
	}
	return id
}
