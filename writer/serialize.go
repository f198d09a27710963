package writer

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/tsawler/vellum/core"
)

// serializeObject writes an object in PDF syntax.
func serializeObject(buf *bytes.Buffer, obj core.Object) {
	switch v := obj.(type) {
	case nil, core.Null:
		buf.WriteString("null")

	case core.Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case core.Int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))

	case core.Real:
		buf.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 64))

	case core.String:
		serializeString(buf, v)

	case core.Name:
		serializeName(buf, v)

	case core.Array:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			serializeObject(buf, elem)
		}
		buf.WriteByte(']')

	case core.Dict:
		serializeDict(buf, v)

	case *core.Stream:
		// Length is written directly and always matches the body.
		dict := make(core.Dict, len(v.Dict))
		for k, val := range v.Dict {
			dict[k] = val
		}
		dict["Length"] = core.Int(len(v.Data))
		serializeDict(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")

	case core.IndirectRef:
		fmt.Fprintf(buf, "%d %d R", v.Number, v.Generation)

	default:
		// Unknown object kinds degrade to null rather than emitting
		// syntax the parser cannot read back.
		buf.WriteString("null")
	}
}

// serializeDict writes keys in sorted order so output is deterministic.
func serializeDict(buf *bytes.Buffer, dict core.Dict) {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte(' ')
		serializeName(buf, core.Name(k))
		buf.WriteByte(' ')
		serializeObject(buf, dict[k])
	}
	buf.WriteString(" >>")
}

// serializeString writes a literal string with delimiter and control
// escapes, or a hex string when the value was read in hex form.
func serializeString(buf *bytes.Buffer, s core.String) {
	if s.Hex {
		buf.WriteByte('<')
		for _, b := range s.Value {
			fmt.Fprintf(buf, "%02X", b)
		}
		buf.WriteByte('>')
		return
	}

	buf.WriteByte('(')
	for _, b := range s.Value {
		switch b {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if b < 0x20 || b >= 0x7F {
				fmt.Fprintf(buf, `\%03o`, b)
			} else {
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte(')')
}

// serializeName writes a name, escaping delimiters and bytes outside the
// printable range as #xx.
func serializeName(buf *bytes.Buffer, name core.Name) {
	buf.WriteByte('/')
	for _, b := range []byte(name) {
		if b <= 0x20 || b >= 0x7F || bytes.IndexByte([]byte("()<>[]{}/%#"), b) >= 0 {
			fmt.Fprintf(buf, "#%02X", b)
		} else {
			buf.WriteByte(b)
		}
	}
}
