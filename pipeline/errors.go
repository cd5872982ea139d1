package pipeline

import (
	"errors"

	"github.com/athenadocs/athena/converter"
	"github.com/athenadocs/athena/storage"
)

// The pipeline classifies failures three ways:
//
//   - structural: the document or its chunks are missing, or the converter
//     selector is unknown. Never retried; the document is left in a defined
//     failed state.
//   - transient: a provider (extraction tool excluded, embedding/generation
//     included) was unreachable or errored. Retried by the stage executor's
//     policy.
//   - persistence: everything else, including transaction conflicts. Not
//     retried, since partial writes must not be silently repeated.

type transient interface {
	Transient() bool
}

// IsTransient reports whether err is a provider failure worth one more
// attempt. Provider error types opt in by implementing Transient() bool.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}

// IsStructural reports whether err can never be fixed by retrying.
func IsStructural(err error) bool {
	return errors.Is(err, storage.ErrNoChunks) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, converter.ErrUnsupportedConverter)
}
