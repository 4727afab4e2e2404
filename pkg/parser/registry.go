package parser

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"
)

// ErrUnresolvedParser is returned when a parser identifier cannot be bound to
// an implementation or a package directory.
var ErrUnresolvedParser = errors.New("unable to resolve parser")

var registry = xsync.NewMap[string, Parser]()

// Register makes a parser available under id. It panics if id is empty, p is
// nil or id has already been registered.
func Register(id string, p Parser) {
	if id == "" {
		panic("parser: Register with empty id")
	}
	if p == nil {
		panic("parser: Register parser is nil for " + id)
	}
	if _, loaded := registry.LoadOrStore(id, p); loaded {
		panic("parser: Register called twice for " + id)
	}
}

// Lookup returns the parser registered under id.
func Lookup(id string) (Parser, bool) {
	return registry.Load(id)
}

// IDs returns the sorted identifiers of all registered parsers.
func IDs() []string {
	var ids []string
	registry.Range(func(id string, _ Parser) bool {
		ids = append(ids, id)
		return true
	})
	slices.Sort(ids)
	return ids
}

// Resolve binds id to its registered implementation and the absolute
// directory reported by loc.
func Resolve(ctx context.Context, loc Locator, id string) (Resolved, error) {
	p, ok := Lookup(id)
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %q is not registered", ErrUnresolvedParser, id)
	}
	dir, err := loc.Locate(ctx, id)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %q: %w", ErrUnresolvedParser, id, err)
	}
	return Resolved{ID: id, Dir: dir, Parser: p}, nil
}
