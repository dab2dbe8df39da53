// Package receiptchain implements the tamper-evident receipt ledger behind
// every accepted citizen submission.
//
// Each receipt is one Link in an append-only hash chain. The first link
// records GenesisHash (64 hex zeros) as its PrevHash; every later link records
// the Hash of its predecessor. A link's Hash is SHA-256 over the canonical
// encoding of its Payload followed by the raw bytes of PrevHash, so any edit to
// a stored payload, and any removal or reordering of links, is detectable by
// the Verifier.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for tests and single-node development.
//   - PostgresStore: durable, for production use.
package receiptchain
