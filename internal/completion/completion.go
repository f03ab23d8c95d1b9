// Package completion wraps the text-completion endpoints the refinement
// pipeline talks to. Two backends are provided: an OpenAI-compatible chat
// endpoint (OpenRouter, or anything speaking the same protocol) and a local
// Ollama server.
//
// Clients do not retry: a call either returns text or fails, and the
// dispatcher recovers per chunk by keeping the original text.
package completion

import (
	"context"
	"errors"
)

// Client sends one system+user prompt pair to a completion model and
// returns the raw text it produced.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrEmptyCompletion is returned when the endpoint answered successfully
// but produced no usable text.
var ErrEmptyCompletion = errors.New("empty completion response")
