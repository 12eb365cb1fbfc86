package reqid

import (
	"context"
	"math/rand/v2"
	"strconv"
)

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID, which is never zero.
func NewContext(parent context.Context) (context.Context, uint64) {
	id := rand.Uint64() | 1
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(key{}).(uint64)
	return id, ok
}

// String formats id the way it is sent in response headers.
func String(id uint64) string { return strconv.FormatUint(id, 16) }
