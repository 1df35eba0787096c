package filters

import "errors"

var (
	ErrFilterNotFound = errors.New("filter not found")
	ErrBlockNotFound  = errors.New("block not found")
)
