package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/bitwebs/bitstream/internal/clock"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEntry = "bitstream/entry/v1"
	DomainOrder = "bitstream/order/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryID computes the content-addressed id of an entry.
// Two replicas holding the same entry always derive the same id.
func EntryID(writer WriterID, seq int64, payload []byte, c clock.Clock) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"writer":  writer,
		"seq":     seq,
		"payload": payload,
		"clock":   c,
	})
	if err != nil {
		return "", fmt.Errorf("EntryID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}

// OrderHash fingerprints an ordered sequence of entry references.
// Used to check that independent computations of the canonical order agree.
func OrderHash(refs []EntryRef) (string, error) {
	arr := make([]any, len(refs))
	for i, r := range refs {
		arr[i] = map[string]any{"writer": r.Writer, "seq": r.Seq}
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("OrderHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOrder, canonical), nil
}
