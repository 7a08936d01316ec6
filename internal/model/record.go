package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Provenance records which entry produced an index value.
// ChangeID is the hex encoding of the source writer's id.
type Provenance struct {
	ChangeID string `json:"changeId"`
	Seq      int64  `json:"seq"`
}

// NewProvenance builds the provenance for an entry of writer at seq.
func NewProvenance(writer WriterID, seq int64) Provenance {
	return Provenance{ChangeID: hex.EncodeToString([]byte(writer)), Seq: seq}
}

// Writer decodes ChangeID back into a writer id.
func (p Provenance) Writer() (WriterID, error) {
	raw, err := hex.DecodeString(p.ChangeID)
	if err != nil {
		return "", fmt.Errorf("decode change id %q: %w", p.ChangeID, err)
	}
	return WriterID(raw), nil
}

// Record is the persisted form of a key/value index entry. The wrapper is
// structural; Value is opaque.
type Record struct {
	Value      []byte     `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// EncodeRecord serializes a record as canonical JSON.
func EncodeRecord(r Record) ([]byte, error) {
	data, err := MarshalCanonical(map[string]any{
		"value": r.Value,
		"provenance": map[string]any{
			"changeId": r.Provenance.ChangeID,
			"seq":      r.Provenance.Seq,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a persisted record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
