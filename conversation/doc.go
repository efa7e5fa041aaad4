// Package conversation manages bounded per-session message history.
//
// History is stored in the memory package's key/value store under one key per
// session, keeping insertion order and evicting the oldest messages first
// once the configured cap is reached. A leading system-role message is pinned
// at position 0 and survives eviction.
package conversation
