package graph

import (
	"context"
	"io"

	"smaligraph/smali"
)

// LoadKind identifies one category of facts whose ingestion completed for a
// source. Used to detect stale or incomplete sources.
type LoadKind int

const (
	LoadClasses LoadKind = iota
	LoadSupers
	LoadInterfaces
	LoadMethods
	LoadCalls
)

func (k LoadKind) String() string {
	switch k {
	case LoadClasses:
		return "classes"
	case LoadSupers:
		return "supers"
	case LoadInterfaces:
		return "interfaces"
	case LoadMethods:
		return "methods"
	case LoadCalls:
		return "calls"
	}
	return "unknown"
}

// AllLoadKinds lists every fact category a complete ingestion run records.
var AllLoadKinds = []LoadKind{LoadClasses, LoadSupers, LoadInterfaces, LoadMethods, LoadCalls}

// Database is the read and lifecycle surface of a graph store. All query
// operations are side-effect-free and safe for concurrent callers, including
// while an ingestion of an unrelated source is in flight. A filtered query is
// never silently widened; fallback broadening is caller policy.
type Database interface {
	// GetAllSources enumerates every source name known to the store.
	GetAllSources(ctx context.Context) (map[string]struct{}, error)

	// FindChildClassesOf returns the direct (one-hop) children of the
	// given parent class. source, when non-empty, restricts to
	// inheritance edges discovered in that source.
	FindChildClassesOf(ctx context.Context, parent ClassSearch, source string) ([]ClassSpec, error)

	// FindClassesImplementing returns the classes directly declaring the
	// given interface. Superinterfaces are not expanded.
	FindClassesImplementing(ctx context.Context, iface ClassSearch, source string) ([]ClassSpec, error)

	// FindCallers walks reverse call edges breadth-first up to depth hops
	// and returns one path per discovered caller. callSource, when
	// non-empty, restricts traversal to call edges discovered in that
	// source.
	FindCallers(ctx context.Context, method MethodSearch, callSource string, depth int) ([]MethodCallPath, error)

	// FindOutgoingCalls walks forward call edges breadth-first up to
	// depth hops.
	FindOutgoingCalls(ctx context.Context, from MethodSearch, depth int) ([]MethodCallPath, error)

	// FindClassesWithMethod returns the classes defining a method with
	// the given name. signature is an exact match when set.
	FindClassesWithMethod(ctx context.Context, name string, signature *string, source string) ([]ClassSpec, error)

	// GetClassesFor lists every class owned by the given source.
	GetClassesFor(ctx context.Context, source string) ([]smali.ClassName, error)

	// GetMethodsFor lists every method owned by the given source.
	GetMethodsFor(ctx context.Context, source string) ([]MethodSpec, error)

	// Wipe deletes all rows in all relations. Idempotent.
	Wipe(ctx context.Context) error

	// RemoveSource deletes every edge discovered by the source, then
	// every fact it owns. Edges discovered by other sources that
	// reference the removed facts are left in place.
	RemoveSource(ctx context.Context, source string) error
}

// Importer is the write surface used by the ingestion engine.
type Importer interface {
	// ReplaceSource atomically replaces the source's stored facts with
	// the batch: readers observe either the prior state or the complete
	// new state, never a mixture.
	ReplaceSource(ctx context.Context, source string, batch *FactBatch) error

	// Loaded reports which fact kinds completed ingestion for the source.
	Loaded(ctx context.Context, source string) ([]LoadKind, error)
}

// Store is the full capability set of a graph storage backend.
type Store interface {
	Database
	Importer
	io.Closer
}
