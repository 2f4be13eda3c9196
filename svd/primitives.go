package svd

import (
	"encoding/xml"
	"fmt"
	"strings"

	"omibyte.io/regview/bitutil"
)

// Integer is an SVD scaledNonNegativeInteger restricted to 32 bits.
type Integer uint32

func (i *Integer) UnmarshalXML(d *xml.Decoder, start xml.StartElement) (err error) {
	var v string
	if err = d.DecodeElement(&v, &start); err != nil {
		return err
	}
	return i.set(start.Name.Local, v)
}

func (i *Integer) UnmarshalXMLAttr(attr xml.Attr) error {
	return i.set(attr.Name.Local, attr.Value)
}

func (i *Integer) set(name, v string) error {
	value, ok := bitutil.ParseInteger(strings.TrimSpace(v))
	if !ok {
		return fmt.Errorf("%w: <%s> has malformed number %q", ErrMalformed, name, v)
	}
	*i = Integer(value)
	return nil
}

// Value returns the integer or def when it was not present in the document.
func (i *Integer) Value(def uint32) uint32 {
	if i == nil {
		return def
	}
	return uint32(*i)
}
