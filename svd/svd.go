package svd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrMalformed = errors.New("malformed SVD document")
	ErrNotDevice = errors.New("document root is not <device>")
)

// Decode reads an SVD document. Only the XML structure is validated here;
// semantic checks happen when the peripheral tree is built.
func Decode(r io.Reader) (*DeviceElement, error) {
	var device DeviceElement
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&device); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, errors.Join(ErrMalformed, err)
	}
	return &device, nil
}

func Load(path string) (*DeviceElement, error) {
	// Open the input file
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	device, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return device, nil
}

func (d *DeviceElement) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	if start.Name.Local != "device" {
		return fmt.Errorf("%w: found <%s>", ErrNotDevice, start.Name.Local)
	}
	type plain DeviceElement
	return dec.DecodeElement((*plain)(d), &start)
}
