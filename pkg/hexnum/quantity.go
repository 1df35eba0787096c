package hexnum

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Quantity is a numeric field as received from an upstream node. Some nodes send JSON
// numbers or minimal hex, so the raw text is kept until Normalize is called.
type Quantity string

func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, data)
	}
	*q = Quantity(n.String())
	return nil
}

// Normalize rewrites q into its canonical hex form. Empty quantities are left alone.
func (q *Quantity) Normalize() error {
	if *q == "" {
		return nil
	}
	s, err := Canonical(string(*q))
	if err != nil {
		return err
	}
	*q = Quantity(s)
	return nil
}

// Uint64 decodes the quantity in either hex or decimal form.
func (q Quantity) Uint64() (uint64, error) {
	s, err := Canonical(string(q))
	if err != nil {
		return 0, err
	}
	return HexToInt(s)
}

func (q Quantity) String() string {
	return string(q)
}
