package domain

import (
	"fmt"

	"github.com/goccy/go-json"
)

// decodeTuple fills dst from a positional JSON array. Missing trailing
// elements and nulls leave the destination untouched.
func decodeTuple(data []byte, dst ...any) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) > len(dst) {
		return fmt.Errorf("tuple has %d elements, want at most %d", len(raw), len(dst))
	}
	for i, el := range raw {
		if string(el) == "null" {
			continue
		}
		if err := json.Unmarshal(el, dst[i]); err != nil {
			return fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return nil
}
