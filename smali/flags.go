package smali

import "strings"

// AccessFlags is the dex access-flag bitset attached to classes and methods.
type AccessFlags uint32

const (
	AccPublic               AccessFlags = 0x1
	AccPrivate              AccessFlags = 0x2
	AccProtected            AccessFlags = 0x4
	AccStatic               AccessFlags = 0x8
	AccFinal                AccessFlags = 0x10
	AccSynchronized         AccessFlags = 0x20
	AccBridge               AccessFlags = 0x40
	AccVarargs              AccessFlags = 0x80
	AccNative               AccessFlags = 0x100
	AccInterface            AccessFlags = 0x200
	AccAbstract             AccessFlags = 0x400
	AccStrict               AccessFlags = 0x800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

var flagWords = []struct {
	word string
	flag AccessFlags
}{
	{"public", AccPublic},
	{"private", AccPrivate},
	{"protected", AccProtected},
	{"static", AccStatic},
	{"final", AccFinal},
	{"synchronized", AccSynchronized},
	{"bridge", AccBridge},
	{"varargs", AccVarargs},
	{"native", AccNative},
	{"interface", AccInterface},
	{"abstract", AccAbstract},
	{"strictfp", AccStrict},
	{"synthetic", AccSynthetic},
	{"annotation", AccAnnotation},
	{"enum", AccEnum},
	{"constructor", AccConstructor},
	{"declared-synchronized", AccDeclaredSynchronized},
}

// ParseFlagWord maps a single smali modifier word to its flag bit.
func ParseFlagWord(w string) (AccessFlags, bool) {
	for _, fw := range flagWords {
		if fw.word == w {
			return fw.flag, true
		}
	}
	return 0, false
}

func (f AccessFlags) Has(x AccessFlags) bool { return f&x != 0 }

func (f AccessFlags) IsPublic() bool    { return f.Has(AccPublic) }
func (f AccessFlags) IsInterface() bool { return f.Has(AccInterface) }
func (f AccessFlags) IsAbstract() bool  { return f.Has(AccAbstract) }

// Concrete reports whether the class can be instantiated directly.
func (f AccessFlags) Concrete() bool {
	return f&(AccAbstract|AccInterface) == 0
}

func (f AccessFlags) String() string {
	if f == 0 {
		return ""
	}
	var words []string
	for _, fw := range flagWords {
		if f.Has(fw.flag) {
			words = append(words, fw.word)
		}
	}
	return strings.Join(words, " ")
}
