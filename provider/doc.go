// Package provider abstracts the language model behind a chat completion
// interface.
//
// The OpenAI implementation works against any OpenAI-compatible endpoint,
// converting conversation messages and tool schemas to the wire format and
// parsing tool-call requests with their correlation ids out of responses.
package provider
