// Package transforms holds the transformation capabilities the pipeline can
// dispatch to. New tools register a Transformer for their kind; the invoker
// never needs to change.
package transforms

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/filecrate/filecrate-api/pkg/file_api/models"
)

// ErrUnsupportedInput marks input the tool cannot process. Anything else a
// transform returns is treated as an internal failure.
var ErrUnsupportedInput = errors.New("unsupported input")

// Request carries the original bytes plus the per-tool options supplied at
// upload. Options is raw JSON; each tool parses its own shape.
type Request struct {
	DisplayName string
	MimeType    string
	Options     json.RawMessage
	Data        []byte
}

// Result is the derived artifact.
type Result struct {
	Data        []byte
	DisplayName string
	MimeType    string
}

// Transformer is the capability contract. Implementations must be safe to
// invoke with attacker-controlled bytes and must honor ctx cancellation for
// long-running work.
type Transformer interface {
	Accepts(mimeType string) bool
	Transform(ctx context.Context, req Request) (*Result, error)
}

// Registry maps tool kinds to their registered capability.
type Registry struct {
	m map[models.ToolKind]Transformer
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[models.ToolKind]Transformer)}
}

func (r *Registry) Register(kind models.ToolKind, t Transformer) {
	r.m[kind] = t
}

func (r *Registry) Lookup(kind models.ToolKind) (Transformer, bool) {
	t, ok := r.m[kind]
	return t, ok
}

// Supports reports whether the kind is registered and accepts the mime type.
// Unregistered kinds fail here, at upload validation, never at run time.
func (r *Registry) Supports(kind models.ToolKind, mimeType string) bool {
	t, ok := r.m[kind]
	return ok && t.Accepts(mimeType)
}

// Kinds lists the registered tool kinds.
func (r *Registry) Kinds() []models.ToolKind {
	out := make([]models.ToolKind, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	return out
}
