// Package registry implements the ordered name→index dictionaries used
// by the stream encoder: declared fields and event schemas.
//
// Indexes are dense and assigned in declaration order starting at 0.
// Names are bucketed by their xxHash64 ID; the entries of a bucket are
// compared by full string, so two distinct names that share a hash are
// never treated as duplicates.
package registry

import (
	"github.com/andewhash/apx-repack/internal/hash"
)

// Registry assigns dense indexes to unique names in declaration order.
type Registry struct {
	byID  map[uint64][]entry // hash → entries (slice handles collisions)
	names []string           // ordered list, index == declaration index
	cap   int                // maximum number of entries, 0 = unbounded
}

type entry struct {
	name  string
	index int
}

// New creates a registry capped at maxEntries names (0 means unbounded).
func New(maxEntries int) *Registry {
	return &Registry{
		byID: make(map[uint64][]entry),
		cap:  maxEntries,
	}
}

// Add assigns the next index to name.
//
// Returns:
//   - int: assigned index, the existing index for a duplicate name, or -1
//     for an empty name or a full registry
//   - bool: true if the name was added, false if it already exists or the registry is full
func (r *Registry) Add(name string) (int, bool) {
	if name == "" {
		return -1, false
	}
	if r.Full() {
		return -1, false
	}

	id := hash.ID(name)
	for _, e := range r.byID[id] {
		if e.name == name {
			return e.index, false
		}
	}

	index := len(r.names)
	r.byID[id] = append(r.byID[id], entry{name: name, index: index})
	r.names = append(r.names, name)

	return index, true
}

// Lookup returns the index of name, or -1 when it has not been added.
func (r *Registry) Lookup(name string) int {
	for _, e := range r.byID[hash.ID(name)] {
		if e.name == name {
			return e.index
		}
	}

	return -1
}

// Name returns the name at the given index, or "" when out of range.
func (r *Registry) Name(index int) string {
	if index < 0 || index >= len(r.names) {
		return ""
	}

	return r.names[index]
}

// Names returns the ordered list of registered names.
// The order matches the order in which Add was called.
func (r *Registry) Names() []string {
	return r.names
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	return len(r.names)
}

// Full reports whether the registry reached its cap.
func (r *Registry) Full() bool {
	return r.cap > 0 && len(r.names) >= r.cap
}
