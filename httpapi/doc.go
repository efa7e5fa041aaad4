// Package httpapi serves the REST control surface: session lifecycle,
// sandbox code execution and file access, and the chat endpoints.
//
// Sandbox errors map onto HTTP status codes (not found 404, unsupported
// operation and validation 400, provisioning failure 502). Routes from the
// pre-session API are kept as 410 Gone tombstones.
package httpapi
