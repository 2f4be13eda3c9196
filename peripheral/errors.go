package peripheral

import "errors"

var (
	ErrParse           = errors.New("unable to parse SVD file")
	ErrNoData          = errors.New("peripheral has not been read yet")
	ErrUnsupportedSize = errors.New("unsupported register size")
	ErrInvalidValue    = errors.New("invalid value")
	ErrOutOfRange      = errors.New("value out of range")
	ErrReadOnly        = errors.New("node is read-only")
	ErrNotUpdatable    = errors.New("node does not hold a value")
	ErrUnknownNode     = errors.New("unknown node")
	ErrFieldRange      = errors.New("field bit range does not fit its register")
	ErrAddressRange    = errors.New("register lies outside its peripheral")
)
