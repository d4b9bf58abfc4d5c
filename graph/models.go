// Package graph defines the fact model, the storage-backend capability
// interfaces, and the error and progress types shared between the ingestion
// engine, the SQLite backend, and consumers.
package graph

import (
	"fmt"
	"strings"

	"smaligraph/smali"
)

// FrameworkSource is the reserved source name for the OS framework image.
// Application sources use their squashed on-device identifier.
const FrameworkSource = "framework"

// ClassSpec describes one stored class and the source that owns it.
type ClassSpec struct {
	Name        smali.ClassName
	AccessFlags smali.AccessFlags
	Source      string
}

// MethodSpec describes one stored method and the source that owns it.
type MethodSpec struct {
	Class       smali.ClassName
	Name        string
	Signature   string
	Ret         string
	AccessFlags smali.AccessFlags
	Source      string
}

// Smali renders the method in bytecode reference form.
func (m MethodSpec) Smali() string {
	return fmt.Sprintf("%s->%s(%s)%s", m.Class.Smali(), m.Name, m.Signature, m.Ret)
}

// MethodCallPath is one traversal result: the full hop sequence, in
// invocation order (caller before callee), between a discovered method and
// the traversal root. Caller traversals end at the searched method, outgoing
// traversals start at it.
type MethodCallPath struct {
	Path []MethodSpec
}

func (p MethodCallPath) String() string {
	parts := make([]string, len(p.Path))
	for i, m := range p.Path {
		parts[i] = m.Smali()
	}
	return strings.Join(parts, " -> ")
}

// ClassSearch identifies a class to query for. Source, when non-empty,
// restricts the match to classes owned by that source (several sources may
// define the same name).
type ClassSearch struct {
	Name   smali.ClassName
	Source string
}

// MethodSearch identifies the root method(s) of a query. Name is required;
// Class, Signature, and Source each narrow the match when non-empty.
type MethodSearch struct {
	Name      string
	Class     smali.ClassName
	Signature string
	// SignatureSet distinguishes "no signature filter" from an explicit
	// empty (zero-argument) signature.
	SignatureSet bool
	Source       string
}
