package codegen

import (
	"strconv"
	"strings"

	"stc/src/index"
)

// sectionPrefix namespaces every generated symbol's ABI-metadata section so
// a loader or linker can recognize it among other tools' section names
// (spec.md §4.7/§6.4: "every emitted symbol has a ... section name for ABI
// identification").
const sectionPrefix = "$stc$"

// mangleFuncSection builds p's section name per spec.md §4.7's grammar:
// fn-<name>:<return_type>[<arg1>][<arg2>]…
func mangleFuncSection(ix *index.Index, p *index.POU) string {
	var b strings.Builder
	b.WriteString(sectionPrefix)
	b.WriteString("fn-")
	b.WriteString(p.Name)
	b.WriteByte(':')
	if p.ReturnType == "" {
		b.WriteByte('v')
	} else {
		b.WriteString(mangleType(ix, p.ReturnType))
	}
	for _, v := range orderedParams(ix, p) {
		b.WriteByte('[')
		b.WriteString(mangleType(ix, v.TypeRef))
		b.WriteByte(']')
	}
	return b.String()
}

// mangleVarSection builds a global variable's section name per spec.md
// §4.7's grammar: var-<name>:<type>
func mangleVarSection(ix *index.Index, v *index.Variable) string {
	return sectionPrefix + "var-" + v.Name + ":" + mangleType(ix, v.TypeRef)
}

// mangleType encodes name's shape using spec.md §4.7's compact type grammar.
// Self-referential or mutually-recursive struct/pointer types terminate
// naturally: a pointer only ever contributes "p" plus its pointee's own
// encoding, and a struct's member encoding never re-enters the struct being
// encoded (a pointer-to-self member stops at "p<inner-name-free encoding>").
func mangleType(ix *index.Index, name string) string {
	t, ok := ix.LookupType(name)
	if !ok {
		return "v"
	}
	switch t.Kind {
	case index.KindVoid:
		return "v"
	case index.KindNumeric:
		if t.Signed {
			return "i" + strconv.Itoa(t.Bits)
		}
		return "u" + strconv.Itoa(t.Bits)
	case index.KindFloat:
		return "f" + strconv.Itoa(t.Bits)
	case index.KindString:
		enc := "0"
		if t.StrWide {
			enc = "1"
		}
		return "s" + enc + strconv.Itoa(t.StrSize)
	case index.KindPointer:
		return "p" + mangleType(ix, t.Inner)
	case index.KindStruct:
		var b strings.Builder
		b.WriteByte('r')
		b.WriteString(strconv.Itoa(len(t.Members)))
		for _, m := range t.Members {
			b.WriteString(mangleType(ix, m.TypeRef))
		}
		return b.String()
	case index.KindEnum:
		return "e" + strconv.Itoa(len(t.Elements)) + mangleType(ix, t.Backing)
	case index.KindSubRange:
		return mangleType(ix, t.Base)
	case index.KindArray:
		return "a" + mangleType(ix, t.Element)
	case index.KindAlias:
		return mangleType(ix, t.AliasOf)
	case index.KindGeneric:
		return "v"
	}
	return "v"
}

