// Package protocol owns the onion message wire contract.
//
// Ownership boundary:
// - decode error taxonomy shared by every payload decoder
// - tlv stream primitives (protocol/tlv)
// - per-message field schemas (protocol/schema)
// - capture file framing (protocol/frame)
package protocol
