package model

import (
	"encoding/json"
	"fmt"
)

// OpType names an operation carried in an entry payload.
type OpType string

const (
	// OpPut writes a value under a key. It is the only operation the
	// key/value layer merges.
	OpPut OpType = "put"
	// OpDel is recognized on the wire but never applied.
	OpDel OpType = "del"
)

// Op is the operation envelope stored in entry payloads by the key/value layer.
type Op struct {
	Type  OpType `json:"type"`
	Key   []byte `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// EncodeOp serializes an op as canonical JSON. Key and value are base64.
func EncodeOp(op Op) ([]byte, error) {
	obj := map[string]any{
		"type": string(op.Type),
		"key":  op.Key,
	}
	if op.Value != nil {
		obj["value"] = op.Value
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("encode op: %w", err)
	}
	return data, nil
}

// DecodeOp parses an entry payload into an op envelope.
// It fails if the payload is not a JSON object with a non-empty type.
func DecodeOp(payload []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(payload, &op); err != nil {
		return Op{}, fmt.Errorf("decode op: %w", err)
	}
	if op.Type == "" {
		return Op{}, fmt.Errorf("decode op: missing type")
	}
	return op, nil
}
