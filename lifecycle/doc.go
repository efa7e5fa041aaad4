// Package lifecycle manages session identity and the resources attached to
// it.
//
// A session owns a scratch directory, a persisted state record, and at most
// one sandbox binding. Start allocates all three with retries on transient
// provisioning failures; Stop releases everything unconditionally, absorbing
// partial teardown failures into a log entry and a counter.
package lifecycle
