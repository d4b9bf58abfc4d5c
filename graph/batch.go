package graph

import "smaligraph/smali"

// ClassRecord is one class fact staged for ingestion.
type ClassRecord struct {
	Name        smali.ClassName
	AccessFlags smali.AccessFlags
}

// SuperRecord is one direct inheritance fact (child extends parent).
type SuperRecord struct {
	Child  smali.ClassName
	Parent smali.ClassName
}

// InterfaceRecord is one direct implementation fact.
type InterfaceRecord struct {
	Class     smali.ClassName
	Interface smali.ClassName
}

// MethodRecord is one method fact staged for ingestion.
type MethodRecord struct {
	Class       smali.ClassName
	Name        string
	Args        string
	Ret         string
	AccessFlags smali.AccessFlags
}

// CallRecord is one discovered invocation, both endpoints by reference.
type CallRecord struct {
	CallerClass smali.ClassName
	CallerName  string
	CallerArgs  string
	CalleeClass smali.ClassName
	CalleeName  string
	CalleeArgs  string
}

// FactCounts summarizes a batch or a committed ingestion run.
type FactCounts struct {
	Classes    int
	Methods    int
	Calls      int
	Supers     int
	Interfaces int
}

type methodKey struct {
	class smali.ClassName
	name  string
	args  string
}

// FactBatch accumulates one source's facts in memory before they are flushed
// in a single transaction. Records are deduplicated (first wins) and keep
// insertion order.
type FactBatch struct {
	Classes    []ClassRecord
	Supers     []SuperRecord
	Interfaces []InterfaceRecord
	Methods    []MethodRecord
	Calls      []CallRecord

	classSeen  map[smali.ClassName]struct{}
	superSeen  map[SuperRecord]struct{}
	ifaceSeen  map[InterfaceRecord]struct{}
	methodSeen map[methodKey]struct{}
	callSeen   map[CallRecord]struct{}
}

// NewFactBatch creates an empty batch ready for staging.
func NewFactBatch() *FactBatch {
	return &FactBatch{
		classSeen:  make(map[smali.ClassName]struct{}),
		superSeen:  make(map[SuperRecord]struct{}),
		ifaceSeen:  make(map[InterfaceRecord]struct{}),
		methodSeen: make(map[methodKey]struct{}),
		callSeen:   make(map[CallRecord]struct{}),
	}
}

// AddClass stages a class fact, deduplicating by name (first wins).
func (b *FactBatch) AddClass(c ClassRecord) {
	if _, dup := b.classSeen[c.Name]; dup {
		return
	}
	b.classSeen[c.Name] = struct{}{}
	b.Classes = append(b.Classes, c)
}

// AddSuper stages a direct inheritance fact.
func (b *FactBatch) AddSuper(s SuperRecord) {
	if _, dup := b.superSeen[s]; dup {
		return
	}
	b.superSeen[s] = struct{}{}
	b.Supers = append(b.Supers, s)
}

// AddInterface stages a direct implementation fact.
func (b *FactBatch) AddInterface(i InterfaceRecord) {
	if _, dup := b.ifaceSeen[i]; dup {
		return
	}
	b.ifaceSeen[i] = struct{}{}
	b.Interfaces = append(b.Interfaces, i)
}

// AddMethod stages a method fact, deduplicating by (class, name, args).
func (b *FactBatch) AddMethod(m MethodRecord) {
	k := methodKey{m.Class, m.Name, m.Args}
	if _, dup := b.methodSeen[k]; dup {
		return
	}
	b.methodSeen[k] = struct{}{}
	b.Methods = append(b.Methods, m)
}

// AddCall stages a discovered invocation.
func (b *FactBatch) AddCall(c CallRecord) {
	if _, dup := b.callSeen[c]; dup {
		return
	}
	b.callSeen[c] = struct{}{}
	b.Calls = append(b.Calls, c)
}

// Counts returns the staged fact counts.
func (b *FactBatch) Counts() FactCounts {
	return FactCounts{
		Classes:    len(b.Classes),
		Methods:    len(b.Methods),
		Calls:      len(b.Calls),
		Supers:     len(b.Supers),
		Interfaces: len(b.Interfaces),
	}
}
