// Package smali parses text-format dalvik disassembly artifacts into the
// class, method, and invocation records the graph store ingests. One artifact
// holds one class declaration. The parser is line oriented and ignores
// everything it does not recognize (fields, annotations, debug directives,
// non-invoke instructions).
package smali

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const objectClass = "Ljava/lang/Object;"

// Method is one declared method and the calls its body makes.
type Method struct {
	Name  string
	Args  string
	Ret   string
	Flags AccessFlags
	Calls []MethodRef
}

// Class is the parsed form of a single disassembly artifact.
type Class struct {
	Name       ClassName
	Flags      AccessFlags
	Super      ClassName // empty when the super is java/lang/Object
	Interfaces []ClassName
	Methods    []Method
}

// ParseError reports a malformed structural line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse reads one smali artifact. Each `.method` body's duplicate calls are
// collapsed, `.super Ljava/lang/Object;` is dropped, and `Object-><init>`
// invocations are not recorded as calls.
func Parse(r io.Reader) (*Class, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var cls *Class
	var cur *Method
	seenCalls := make(map[MethodRef]struct{})
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, ".class "):
			flags, rest, err := parseFlagged(strings.TrimPrefix(line, ".class "))
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: err.Error()}
			}
			cls = &Class{Name: ClassName(rest), Flags: flags}

		case strings.HasPrefix(line, ".super "):
			if cls == nil {
				return nil, &ParseError{Line: lineNo, Msg: ".super before .class"}
			}
			sup := strings.TrimSpace(strings.TrimPrefix(line, ".super "))
			if sup != objectClass {
				cls.Super = ClassName(sup)
			}

		case strings.HasPrefix(line, ".implements "):
			if cls == nil {
				return nil, &ParseError{Line: lineNo, Msg: ".implements before .class"}
			}
			iface := strings.TrimSpace(strings.TrimPrefix(line, ".implements "))
			cls.Interfaces = append(cls.Interfaces, ClassName(iface))

		case strings.HasPrefix(line, ".method "):
			if cls == nil {
				return nil, &ParseError{Line: lineNo, Msg: ".method before .class"}
			}
			flags, rest, err := parseFlagged(strings.TrimPrefix(line, ".method "))
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: err.Error()}
			}
			name, sig, ok := strings.Cut(rest, "(")
			if !ok {
				return nil, &ParseError{Line: lineNo, Msg: "method header without signature: " + rest}
			}
			args, ret, ok := strings.Cut(sig, ")")
			if !ok {
				return nil, &ParseError{Line: lineNo, Msg: "unterminated method signature: " + rest}
			}
			cls.Methods = append(cls.Methods, Method{Name: name, Args: args, Ret: ret, Flags: flags})
			cur = &cls.Methods[len(cls.Methods)-1]
			// a truncated body may never reach .end method
			clear(seenCalls)

		case line == ".end method":
			cur = nil
			clear(seenCalls)

		case strings.HasPrefix(line, "invoke-"):
			if cur == nil {
				continue
			}
			ref, ok := parseInvoke(line)
			if !ok {
				continue
			}
			if ref.Class == objectClass && ref.Name == "<init>" {
				continue
			}
			if _, dup := seenCalls[ref]; dup {
				continue
			}
			seenCalls[ref] = struct{}{}
			cur.Calls = append(cur.Calls, ref)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cls == nil {
		return nil, &ParseError{Line: lineNo, Msg: "no .class declaration"}
	}
	return cls, nil
}

// parseFlagged splits leading access-flag words from a directive tail
// (the class descriptor or method header).
func parseFlagged(s string) (AccessFlags, string, error) {
	var flags AccessFlags
	for {
		word, rest, ok := strings.Cut(s, " ")
		if !ok {
			break
		}
		f, isFlag := ParseFlagWord(word)
		if !isFlag {
			break
		}
		flags |= f
		s = rest
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", fmt.Errorf("directive with no target")
	}
	return flags, s, nil
}

// parseInvoke extracts the method reference from an invoke instruction,
// e.g. `invoke-virtual {p0, v1}, Lfoo/Bar;->baz(I)V`. Instructions whose
// operand is not a plain method reference (invoke-custom call sites) are
// skipped.
func parseInvoke(line string) (MethodRef, bool) {
	idx := strings.LastIndex(line, "}, ")
	if idx < 0 {
		return MethodRef{}, false
	}
	ref, err := ParseMethodRef(strings.TrimSpace(line[idx+3:]))
	if err != nil {
		return MethodRef{}, false
	}
	return ref, true
}
