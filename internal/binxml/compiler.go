package binxml

import (
	"fmt"
	"strings"

	"github.com/evtx-go/evtxcore/internal/template"
)

// compileBody compiles the template body at [bodyAbsOffset, bodyAbsOffset+dataSize)
// into a template.Compiled, or returns nil if the body contains a nested
// TemplateInstance, FragmentHeader, or other token the one-pass compiler
// does not flatten (spec §4.4). A nil result is itself cached: recompiling
// a body that will only ever bail again wastes a walk for nothing.
func (d *Decoder) compileBody(bodyAbsOffset int64, dataSize uint32) *template.Compiled {
	cp := &compilePass{
		nr:   &nameResolver{buf: d.buf, chunkFileOffset: d.chunkFileOffset, state: d.state},
		sink: newCompileSink(),
	}
	c := &cursor{buf: d.buf, pos: bodyAbsOffset}
	if tb, err := c.peekByte(); err == nil && token(tb).base() == tokFragmentHeader {
		if c.skip(4) != nil {
			return nil
		}
	}
	end := bodyAbsOffset + int64(dataSize)
	if err := cp.compileContent(c, end); err != nil {
		return nil
	}
	return cp.sink.compiled
}

// stitchCompiled re-expands a compiled template's interleaved static text
// and substitution slots against one record's value table, the fast path
// of spec §4.4. Only XML rendering takes this path: the flattened Parts
// text discards the type information JSON output needs. A vtBinXml slot
// recurses into its own nested document (spec §4.3.5), same as the plain
// structural walk; a vtEvtXml slot passes its decoded text through as
// already-formed markup rather than the escaped text valueXMLText gives
// every other type.
func (r *renderPass) stitchCompiled(t *template.Compiled, vt []rawValue, depth int) (string, error) {
	var sb stringsBuilderSink
	for i, part := range t.Parts {
		sb.WriteString(part)
		if i >= len(t.Subs) {
			continue
		}
		sub := t.Subs[i]
		rv := lookupSlot(vt, sub.SlotID)
		if rv == nil {
			continue
		}
		if sub.Optional && (rv.vt.base() == vtNull || len(rv.data) == 0) {
			continue
		}
		switch rv.vt.base() {
		case vtBinXml:
			children, err := r.decodeBinXmlValue(rv, depth)
			if err != nil {
				return "", err
			}
			var nested strings.Builder
			for _, ch := range children {
				writeContentItemXML(&nested, ch)
			}
			sb.WriteString(nested.String())
		case vtEvtXml:
			sb.WriteString(decodeStringValue(rv.data))
		default:
			sb.WriteString(valueXMLText(rv.vt, rv.data))
		}
	}
	return sb.String(), nil
}

// compilePass walks a template definition body once, structurally, to
// build a template.Compiled. It never sees a specific record's values.
type compilePass struct {
	nr   *nameResolver
	sink *compileSink
}

func (cp *compilePass) compileContent(c *cursor, end int64) error {
	for {
		if c.pos >= end {
			return nil
		}
		tb, err := c.peekByte()
		if err != nil {
			return nil
		}
		switch token(tb).base() {
		case tokEOF, tokCloseStartElement, tokCloseEmptyElement, tokEndElement:
			return nil
		case tokOpenStartElement:
			if err := cp.compileElement(c); err != nil {
				return err
			}
		case tokValue:
			c.u8()
			vtb, err := c.u8()
			if err != nil {
				return err
			}
			n, err := c.u16()
			if err != nil {
				return err
			}
			data, err := c.bytes(int64(n))
			if err != nil {
				return err
			}
			cp.sink.WriteString(valueXMLText(valueType(vtb), data))
		case tokNormalSubstitution, tokOptionalSubstitution:
			if err := cp.compileSubstitution(c); err != nil {
				return err
			}
		case tokCDataSection:
			c.u8()
			n, err := c.u16()
			if err != nil {
				return err
			}
			units, err := c.utf16le(int64(n))
			if err != nil {
				return err
			}
			cp.sink.WriteString(xmlEscape(utf16ToString(units)))
		case tokCharRef:
			c.u8()
			cpv, err := c.u16()
			if err != nil {
				return err
			}
			cp.sink.WriteString(xmlEscape(string(rune(cpv))))
		case tokEntityRef:
			c.u8()
			name, err := cp.nr.decodeInlineOrRefName(c)
			if err != nil {
				return err
			}
			if ch, ok := xmlEntityNames[name]; ok {
				cp.sink.WriteString(xmlEscape(string(ch)))
			} else {
				cp.sink.WriteString("&" + name + ";")
			}
		case tokPITarget:
			return errBail // rare enough in templates to not be worth compiling around
		case tokTemplateInstance, tokFragmentHeader:
			return errBail
		default:
			return errBail
		}
	}
}

func (cp *compilePass) compileElement(c *cursor) error {
	tb, err := c.u8()
	if err != nil {
		return err
	}
	if _, err := c.u16(); err != nil {
		return err
	}
	if _, err := c.u32(); err != nil {
		return err
	}
	nameOffset, err := c.u32()
	if err != nil {
		return err
	}
	name, _, err := cp.nr.resolveName(c, nameOffset)
	if err != nil {
		return err
	}
	cp.sink.WriteString("<" + name)

	if token(tb)&hasMoreFlag != 0 {
		if err := cp.compileAttributes(c); err != nil {
			return err
		}
	}
	closeTok, err := c.u8()
	if err != nil {
		return err
	}
	if token(closeTok).base() == tokCloseEmptyElement {
		cp.sink.WriteString("/>")
		return nil
	}
	cp.sink.WriteString(">")
	if err := cp.compileContent(c, int64(len(cp.nr.buf))); err != nil {
		return err
	}
	cp.sink.WriteString("</" + name + ">")
	if eb, err := c.peekByte(); err == nil && token(eb).base() == tokEndElement {
		c.u8()
	}
	return nil
}

func (cp *compilePass) compileAttributes(c *cursor) error {
	for {
		tb, err := c.u8()
		if err != nil {
			return err
		}
		nameOffset, err := c.u32()
		if err != nil {
			return err
		}
		name, _, err := cp.nr.resolveName(c, nameOffset)
		if err != nil {
			return err
		}
		cp.sink.WriteString(fmt.Sprintf(" %s=\"", name))
		vtb, err := c.peekByte()
		if err != nil {
			return err
		}
		switch token(vtb).base() {
		case tokValue:
			c.u8()
			vt, err := c.u8()
			if err != nil {
				return err
			}
			n, err := c.u16()
			if err != nil {
				return err
			}
			data, err := c.bytes(int64(n))
			if err != nil {
				return err
			}
			cp.sink.WriteString(valueXMLText(valueType(vt), data))
		case tokNormalSubstitution, tokOptionalSubstitution:
			if err := cp.compileSubstitution(c); err != nil {
				return err
			}
		default:
			return errBail
		}
		cp.sink.WriteString("\"")
		if token(tb)&hasMoreFlag == 0 {
			return nil
		}
	}
}

func (cp *compilePass) compileSubstitution(c *cursor) error {
	tb, err := c.u8()
	if err != nil {
		return err
	}
	slotID, err := c.u16()
	if err != nil {
		return err
	}
	if _, err := c.u8(); err != nil { // declared value type, resolved per-record instead
		return err
	}
	cp.sink.pushSub(template.Sub{SlotID: slotID, Optional: token(tb).base() == tokOptionalSubstitution})
	return nil
}

// compileSink accumulates a template.Compiled's interleaved Parts/Subs as
// the compiler walks a template body (spec §4.4).
type compileSink struct {
	compiled *template.Compiled
}

func newCompileSink() *compileSink {
	return &compileSink{compiled: &template.Compiled{Parts: []string{""}}}
}

func (s *compileSink) WriteString(str string) {
	last := len(s.compiled.Parts) - 1
	s.compiled.Parts[last] += str
}

func (s *compileSink) pushSub(sub template.Sub) {
	s.compiled.Subs = append(s.compiled.Subs, sub)
	s.compiled.Parts = append(s.compiled.Parts, "")
}

// stringsBuilderSink is the plain-rendering counterpart to compileSink,
// used only by stitchCompiled.
type stringsBuilderSink struct{ b []byte }

func (s *stringsBuilderSink) WriteString(str string) { s.b = append(s.b, str...) }
func (s *stringsBuilderSink) String() string         { return string(s.b) }
