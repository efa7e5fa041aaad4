// Package sandbox provides isolated execution environments for agent
// sessions.
//
// The package implements two interchangeable backends behind a shared
// capability set: a local backend that runs each sandbox as a Docker
// container with a bind-mounted workspace, and a remote backend that drives
// a hosted sandbox service over HTTP. The Manager routes each session to the
// backend it was bound to at creation time and rejects operations the bound
// backend does not support.
package sandbox
