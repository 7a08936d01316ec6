package store

import (
	"encoding/json"
	"fmt"

	"github.com/bitwebs/bitstream/internal/clock"
	"github.com/bitwebs/bitstream/internal/model"
)

// marshalClock converts a clock to canonical JSON TEXT for storage.
func marshalClock(c clock.Clock) (string, error) {
	data, err := model.MarshalCanonical(c)
	if err != nil {
		return "", fmt.Errorf("marshal clock: %w", err)
	}
	return string(data), nil
}

// unmarshalClock parses a stored clock column.
func unmarshalClock(data string) (clock.Clock, error) {
	if data == "" || data == "{}" {
		return clock.Clock{}, nil
	}
	var c clock.Clock
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return clock.Clock{}, fmt.Errorf("unmarshal clock: %w", err)
	}
	return c, nil
}

// nonNilBytes maps nil to an empty slice so BLOB NOT NULL columns accept it.
func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
