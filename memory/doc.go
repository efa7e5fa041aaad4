// Package memory provides the key/value store backing conversation history
// and session state.
//
// The store keeps all values in memory and writes each key through to a JSON
// file under a storage root, named by a sanitized form of the key. The
// snapshot is best effort: the full set of files is loaded eagerly at
// startup, every Set is written synchronously, and write failures are logged
// and counted rather than surfaced to callers.
package memory
