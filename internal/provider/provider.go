// Package provider integrates external embedding and generative-text services.
package provider

import "context"

// Embedder produces a fixed-length vector for a piece of text. Vectors are
// only comparable within one embedding model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Completer sends a prompt to a generative-text service and returns the raw
// reply. The reply is untrusted text; callers must parse it strictly.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
