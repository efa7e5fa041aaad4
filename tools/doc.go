// Package tools catalogs and executes the capabilities the agent can
// invoke.
//
// Each tool wraps sandbox operations behind a validated, schema-described
// interface. The executor converts every failure mode - unknown tool,
// invalid arguments, returned error, panic - into a structured failed
// result so that a single bad tool call never aborts a conversation turn.
package tools
