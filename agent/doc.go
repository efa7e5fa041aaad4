// Package agent implements the conversation loop that mediates between the
// language model and the tool set.
//
// Each turn runs the model up to a bounded number of iterations, executing
// requested tools between iterations and feeding their results back. Only
// the user message and the final assistant reply enter the persisted
// history; intermediate tool traffic is scoped to the turn.
package agent
