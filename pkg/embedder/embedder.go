// Package embedder defines the external embedding-service boundary
// (spec.md §6): the core treats embedding generation as an interface
// implemented outside the core, and caches only on successful responses.
//
// Grounded on the teacher's internal/embed.Embedder interface, narrowed to
// the three operations spec.md names and generalized off the teacher's
// fixed StaticDimensions constant to an embedder-supplied dimension.
package embedder

import "context"

// Usage reports optional token/cost accounting for a generation call; an
// embedder with nothing to report returns a zero Usage.
type Usage struct {
	PromptTokens int
}

// Result is the outcome of CreateEmbeddings: one vector per input text, in
// the same order, plus optional usage accounting.
type Result struct {
	Embeddings [][]float32
	Usage      Usage
}

// Info identifies the embedder backing a Service, consumed as the model_id
// half of the cache fingerprint (internal/embedcache.Fingerprint).
type Info struct {
	Name string
}

// Service is the external embedding-service boundary. Implementations may
// call out to a local model, a remote HTTP API, or (as Static does here)
// compute a deterministic hash-based vector with no external dependency.
type Service interface {
	// CreateEmbeddings generates one embedding per text. modelHint, if
	// non-empty, requests a specific model variant; an implementation
	// that only supports one model ignores it.
	CreateEmbeddings(ctx context.Context, texts []string, modelHint string) (Result, error)

	// ValidateConfiguration reports whether the service is usable right
	// now (model loaded, credentials present, endpoint reachable), with
	// an optional human-readable message when it is not.
	ValidateConfiguration(ctx context.Context) (ok bool, message string)

	// Info identifies this embedder.
	Info() Info

	// Dimensions returns the width of every vector this embedder
	// produces.
	Dimensions() int
}
