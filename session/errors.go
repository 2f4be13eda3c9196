package session

import "errors"

var (
	ErrNotLoaded   = errors.New("peripherals are not loaded")
	ErrUnknownNode = errors.New("unknown node")
)
