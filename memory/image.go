package memory

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"omibyte.io/regview/bitutil"
)

// Image is a sparse byte-addressed target held in memory. It serves offline
// inspection of a saved register dump and stands in for a live target in
// tests.
type Image struct {
	mu     sync.Mutex
	memory map[uint32]byte

	// Strict makes accesses to bytes that were never stored fail instead of
	// reading as zero.
	Strict bool
}

// Region is a run of consecutive stored bytes.
type Region struct {
	Address uint32
	Data    []byte
}

type imageFile struct {
	Strict bool              `yaml:"strict"`
	Memory map[string]string `yaml:"memory"`
}

func NewImage() *Image {
	return &Image{memory: map[uint32]byte{}}
}

// LoadImage decodes a YAML image:
//
//	strict: true
//	memory:
//	  0x40001000: "34 12 cd ab"
//
// Each key is a start address, each value hex encoded bytes. Whitespace in
// the byte string is ignored.
func LoadImage(r io.Reader) (*Image, error) {
	var file imageFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}

	img := NewImage()
	img.Strict = file.Strict
	for key, value := range file.Memory {
		address, ok := bitutil.ParseInteger(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrAddress, key)
		}
		data, err := hex.DecodeString(strings.Join(strings.Fields(value), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: bytes at %s: %v", ErrData, key, err)
		}
		img.Store(address, data)
	}
	return img, nil
}

func LoadImageFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := LoadImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Save writes the image in the format LoadImage reads, one entry per region.
func (m *Image) Save(w io.Writer) error {
	file := imageFile{
		Strict: m.Strict,
		Memory: map[string]string{},
	}
	for _, r := range m.Regions() {
		file.Memory[bitutil.HexFormat(r.Address, bitutil.DefaultHexPadding, true)] = hex.EncodeToString(r.Data)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&file); err != nil {
		return err
	}
	return enc.Close()
}

func (m *Image) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Store copies data into the image starting at address.
func (m *Image) Store(address uint32, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range data {
		m.memory[address+uint32(i)] = b
	}
}

// Regions returns the stored bytes as runs ordered by address.
func (m *Image) Regions() []Region {
	m.mu.Lock()
	defer m.mu.Unlock()

	addresses := maps.Keys(m.memory)
	slices.Sort(addresses)

	var regions []Region
	for _, address := range addresses {
		if n := len(regions); n > 0 {
			last := &regions[n-1]
			if uint64(last.Address)+uint64(len(last.Data)) == uint64(address) {
				last.Data = append(last.Data, m.memory[address])
				continue
			}
		}
		regions = append(regions, Region{Address: address, Data: []byte{m.memory[address]}})
	}
	return regions
}

func (m *Image) ReadMemory(ctx context.Context, address string, length int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base, ok := bitutil.ParseInteger(address)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAddress, address)
	}
	if length < 0 || uint64(base)+uint64(length) > 1<<32 {
		return nil, fmt.Errorf("%w: %d bytes at %s", ErrAddress, length, address)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := make([]byte, length)
	for i := range data {
		b, ok := m.memory[base+uint32(i)]
		if !ok && m.Strict {
			return nil, fmt.Errorf("%w: %s is not mapped", ErrTarget,
				bitutil.HexFormat(base+uint32(i), bitutil.DefaultHexPadding, true))
		}
		data[i] = b
	}
	return data, nil
}

func (m *Image) WriteMemory(ctx context.Context, address string, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base, ok := bitutil.ParseInteger(address)
	if !ok {
		return fmt.Errorf("%w: %q", ErrAddress, address)
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrData, err)
	}
	if uint64(base)+uint64(len(raw)) > 1<<32 {
		return fmt.Errorf("%w: %d bytes at %s", ErrAddress, len(raw), address)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Strict {
		for i := range raw {
			if _, ok := m.memory[base+uint32(i)]; !ok {
				return fmt.Errorf("%w: %s is not mapped", ErrTarget,
					bitutil.HexFormat(base+uint32(i), bitutil.DefaultHexPadding, true))
			}
		}
	}
	for i, b := range raw {
		m.memory[base+uint32(i)] = b
	}
	return nil
}
