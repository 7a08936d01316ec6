// Package model defines the data types shared by every bitstream layer.
//
// model imports only the clock package; every other internal package imports
// model. It holds:
//   - Writer identities, entries and entry references
//   - The "put" operation envelope carried in entry payloads
//   - The provenance record persisted in the key/value index
//   - RFC 8785 canonical JSON and domain-separated content hashes
//
// Sequence numbers are logical positions in a writer log, never timestamps.
package model
