package model

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/bitwebs/bitstream/internal/clock"
)

// WriterID identifies the owner of one append-only log.
// Writers are totally ordered by byte-wise comparison of their ids.
type WriterID string

// Less reports whether w sorts before other.
func (w WriterID) Less(other WriterID) bool {
	return w < other
}

// Validate rejects ids that canonical JSON would not reproduce byte for
// byte. Clocks are persisted as canonical JSON objects keyed by writer id, so
// an id that is not NFC-normalized UTF-8 would come back under another key.
func (w WriterID) Validate() error {
	switch {
	case w == "":
		return errors.New("empty writer id")
	case !utf8.ValidString(string(w)):
		return fmt.Errorf("writer id %q is not valid UTF-8", string(w))
	case !norm.NFC.IsNormalString(string(w)):
		return fmt.Errorf("writer id %q is not NFC-normalized", string(w))
	}
	return nil
}

// EntryRef addresses a single entry: the writer's log and a position in it.
type EntryRef struct {
	Writer WriterID `json:"writer"`
	Seq    int64    `json:"seq"`
}

// String returns "writer:seq".
func (r EntryRef) String() string {
	return fmt.Sprintf("%s:%d", r.Writer, r.Seq)
}

// Entry is one immutable record of a writer log.
//
// Clock is the causal snapshot the producer supplied before appending. All
// entries of one append share it, and it knows the writer's head at that
// time: seq len-1 of the log before the append, or nothing when the log was
// empty.
type Entry struct {
	ID      string      `json:"id"`
	Writer  WriterID    `json:"writer"`
	Seq     int64       `json:"seq"`
	Payload []byte      `json:"payload"`
	Clock   clock.Clock `json:"clock"`
}

// Ref returns the entry's address.
func (e Entry) Ref() EntryRef {
	return EntryRef{Writer: e.Writer, Seq: e.Seq}
}

// Output is one materialized value of a derived view, tagged with the entry
// that produced it.
type Output struct {
	Ref   EntryRef `json:"ref"`
	Value []byte   `json:"value"`
}
