package smali

import (
	"fmt"
	"strings"
)

// ClassName is a class identifier stored in bytecode descriptor form
// ("Lcom/example/Foo;"). The java dotted form is derived on demand.
type ClassName string

// ClassNameFromJava converts a dotted java name to descriptor form.
func ClassNameFromJava(name string) ClassName {
	return ClassName("L" + strings.ReplaceAll(name, ".", "/") + ";")
}

// NormalizeClass accepts either a descriptor ("Lfoo/Bar;") or a java
// name ("foo.Bar") and returns the descriptor form.
func NormalizeClass(s string) ClassName {
	if strings.HasPrefix(s, "L") && strings.HasSuffix(s, ";") {
		return ClassName(s)
	}
	return ClassNameFromJava(s)
}

// Smali returns the descriptor form.
func (c ClassName) Smali() string { return string(c) }

// Java returns the dotted java form.
func (c ClassName) Java() string {
	s := strings.TrimSuffix(strings.TrimPrefix(string(c), "L"), ";")
	return strings.ReplaceAll(s, "/", ".")
}

// MethodRef identifies a method by its declaring class, name, and argument
// signature, as it appears in an invoke instruction.
type MethodRef struct {
	Class ClassName
	Name  string
	Args  string
	Ret   string
}

// ParseMethodRef parses the "Lfoo/Bar;->name(args)ret" form.
func ParseMethodRef(s string) (MethodRef, error) {
	class, rem, ok := strings.Cut(s, "->")
	if !ok || rem == "" {
		return MethodRef{}, fmt.Errorf("invalid method reference (no ->): %q", s)
	}
	name, sig, ok := strings.Cut(rem, "(")
	if !ok {
		return MethodRef{}, fmt.Errorf("invalid method reference (no signature): %q", s)
	}
	args, ret, ok := strings.Cut(sig, ")")
	if !ok {
		return MethodRef{}, fmt.Errorf("invalid method reference (unterminated signature): %q", s)
	}
	return MethodRef{
		Class: ClassName(class),
		Name:  name,
		Args:  args,
		Ret:   ret,
	}, nil
}

func (m MethodRef) String() string {
	return fmt.Sprintf("%s->%s(%s)%s", m.Class.Smali(), m.Name, m.Args, m.Ret)
}
