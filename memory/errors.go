package memory

import "errors"

var (
	ErrTarget   = errors.New("target error")
	ErrAddress  = errors.New("invalid address")
	ErrData     = errors.New("invalid data")
	ErrProtocol = errors.New("gdb protocol error")
)
