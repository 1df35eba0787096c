package hexnum

import "strings"

// BlockRef is either a hex block number or one of the symbolic tags.
type BlockRef string

const (
	Earliest BlockRef = "earliest"
	Latest   BlockRef = "latest"
	Pending  BlockRef = "pending"
)

// IsNumber reports whether the reference names a concrete block.
func (r BlockRef) IsNumber() bool {
	_, err := HexToInt(string(r))
	return err == nil
}

// IsTag reports whether r is one of earliest, latest or pending.
func (r BlockRef) IsTag() bool {
	switch BlockRef(strings.ToLower(string(r))) {
	case Earliest, Latest, Pending:
		return true
	}
	return false
}

// Resolve maps a symbolic reference onto concrete block numbers: latest and pending
// become current, earliest becomes block zero. Numbers and unknown strings pass through.
func (r BlockRef) Resolve(current string) BlockRef {
	switch BlockRef(strings.ToLower(string(r))) {
	case Latest, Pending, "":
		return BlockRef(current)
	case Earliest:
		return BlockRef(IntToHex(0))
	}
	return r
}

// MinBlockRef returns the lower of ref and current once ref has been resolved against
// current. current must be a block number.
func MinBlockRef(ref BlockRef, current string) BlockRef {
	resolved := ref.Resolve(current)
	a, err := HexToInt(string(resolved))
	if err != nil {
		return BlockRef(current)
	}
	b, err := HexToInt(current)
	if err != nil {
		return resolved
	}
	if a < b {
		return resolved
	}
	return BlockRef(current)
}
