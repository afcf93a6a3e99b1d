package binxml

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/evtx-go/evtxcore/internal/chunk"
	"github.com/evtx-go/evtxcore/internal/template"
)

// Format selects the output shape a Decoder renders records into.
type Format int

const (
	FormatXML Format = iota
	FormatJSON
)

// maxDepth bounds TemplateInstance and embedded-BinXml recursion (spec §4.4,
// §9), so a corrupt or adversarial chain of nested templates cannot run the
// decoder out of stack.
const maxDepth = 64

// errBail is a sentinel returned internally when a template body contains
// something the one-pass compiler cannot flatten into Parts/Subs; it never
// escapes Decoder's exported methods.
var errBail = fmt.Errorf("template body is not compilable")

// rawValue is an undecoded value: its type tag plus a view of its backing
// bytes in the shared file buffer. fileOffset is the absolute offset of
// data[0], needed only to recurse into a vtBinXml value's embedded
// document (spec §4.3.5).
type rawValue struct {
	vt         valueType
	data       []byte
	fileOffset int64
}

// elementNode is the structural parse of one BinXml element, shared by the
// XML and JSON renderers so the token grammar is walked exactly once per
// record (spec §4.3.1-§4.3.4).
type elementNode struct {
	name     string
	attrs    []attrNode
	children []contentItem
}

type attrNode struct {
	name string
	text string
}

// contentItem is one child of an element: exactly one of elem, value, or
// text is set.
type contentItem struct {
	elem     *elementNode
	value    *rawValue
	text     string
	isRawXML bool // text is pre-formed XML markup; render verbatim, never escape
}

// Decoder renders BinXml payloads found in the records of a single chunk.
// It is not safe for concurrent use: callers run one Decoder per worker,
// matching the chunk-owned State it reads and mutates (spec §9).
type Decoder struct {
	buf             []byte
	chunkFileOffset int64
	state           *chunk.State
	compiled        *template.Cache
	format          Format
}

// NewDecoder builds a Decoder over buf, whose chunk begins at
// chunkFileOffset, using state for the chunk-local name/template caches and
// compiled for the process-wide compiled-template cache.
func NewDecoder(buf []byte, chunkFileOffset int64, state *chunk.State, compiled *template.Cache, format Format) *Decoder {
	return &Decoder{buf: buf, chunkFileOffset: chunkFileOffset, state: state, compiled: compiled, format: format}
}

// Render decodes the BinXml payload at [payloadOffset, payloadOffset+payloadLen)
// and returns its rendered text plus any advisory warnings.
func (d *Decoder) Render(payloadOffset, payloadLen int64) (out string, warnings []string, err error) {
	rec := &renderPass{
		d:        d,
		nr:       &nameResolver{buf: d.buf, chunkFileOffset: d.chunkFileOffset, state: d.state},
		warnings: &warnings,
	}
	c := &cursor{buf: d.buf, pos: payloadOffset}
	end := payloadOffset + payloadLen

	items, rerr := rec.walkContent(c, end, nil, 0)
	if rerr != nil {
		return "", warnings, rerr
	}

	var root *elementNode
	for _, it := range items {
		if it.elem != nil {
			root = it.elem
			break
		}
	}

	switch d.format {
	case FormatJSON:
		// JSON never takes the compiled-template fast path (it needs each
		// value's type, which flattened Parts text has already discarded),
		// so a fully-walked payload always yields a structural root here.
		if root == nil {
			return "", warnings, fmt.Errorf("binxml payload at %d produced no root element", payloadOffset)
		}
		return renderJSONText(elementToJSON(root)), warnings, nil
	default:
		if root != nil {
			var sb strings.Builder
			writeElementXML(&sb, root)
			return sb.String(), warnings, nil
		}
		// A top-level TemplateInstance rendered through the compiled fast
		// path flattens straight to text with no elementNode wrapper: fall
		// back to rendering the raw top-level content items directly.
		var sb strings.Builder
		for _, it := range items {
			writeContentItemXML(&sb, it)
		}
		if sb.Len() == 0 {
			return "", warnings, fmt.Errorf("binxml payload at %d produced no root element", payloadOffset)
		}
		return sb.String(), warnings, nil
	}
}

// renderPass holds the per-record mutable state (warnings sink) threaded
// through one Render call.
type renderPass struct {
	d        *Decoder
	nr       *nameResolver
	warnings *[]string
}

func (r *renderPass) warn(msg string) { *r.warnings = append(*r.warnings, msg) }

func (r *renderPass) relOffset(pos int64) uint32 { return r.nr.relOffset(pos) }

// walkContent decodes a sequence of sibling nodes until EOF, CloseStartElement,
// CloseEmptyElement, or EndElement, per spec §4.3.3.
func (r *renderPass) walkContent(c *cursor, end int64, vt []rawValue, depth int) ([]contentItem, error) {
	var items []contentItem
	for {
		if c.pos >= end {
			return items, nil
		}
		tb, err := c.peekByte()
		if err != nil {
			return items, nil
		}
		switch token(tb).base() {
		case tokEOF, tokCloseStartElement, tokCloseEmptyElement, tokEndElement:
			return items, nil
		case tokOpenStartElement:
			el, err := r.decodeElement(c, vt, depth)
			if err != nil {
				return items, err
			}
			items = append(items, contentItem{elem: el})
		case tokValue:
			it, err := r.decodeValueToken(c)
			if err != nil {
				return items, err
			}
			spliced, err := r.spliceBinXmlValue(it, depth)
			if err != nil {
				return items, err
			}
			items = append(items, spliced...)
		case tokNormalSubstitution, tokOptionalSubstitution:
			it, skip, err := r.decodeSubstitution(c, vt)
			if err != nil {
				return items, err
			}
			if !skip {
				spliced, err := r.spliceBinXmlValue(it, depth)
				if err != nil {
					return items, err
				}
				items = append(items, spliced...)
			}
		case tokCDataSection:
			text, err := r.readLengthPrefixedString(c)
			if err != nil {
				return items, err
			}
			items = append(items, contentItem{text: text})
		case tokCharRef:
			c.u8()
			cp, err := c.u16()
			if err != nil {
				return items, err
			}
			items = append(items, contentItem{text: string(rune(cp))})
		case tokEntityRef:
			c.u8()
			name, err := r.nr.decodeInlineOrRefName(c)
			if err != nil {
				return items, err
			}
			if ch, ok := xmlEntityNames[name]; ok {
				items = append(items, contentItem{text: string(ch)})
			} else {
				items = append(items, contentItem{text: "&" + name + ";", isRawXML: true})
			}
		case tokPITarget:
			if err := r.skipPI(c); err != nil {
				return items, err
			}
		case tokTemplateInstance:
			if depth >= maxDepth {
				return items, fmt.Errorf("template instance nesting exceeds %d", maxDepth)
			}
			sub, err := r.decodeTemplateInstanceTree(c, vt, depth+1)
			if err != nil {
				return items, err
			}
			if sub != nil {
				items = append(items, sub.children...)
			}
		case tokFragmentHeader:
			c.skip(4)
		default:
			r.warn(fmt.Sprintf("unsupported binxml token %#x at offset %d", tb, c.pos))
			return items, nil
		}
	}
}

func (r *renderPass) decodeElement(c *cursor, vt []rawValue, depth int) (*elementNode, error) {
	tb, err := c.u8()
	if err != nil {
		return nil, err
	}
	if _, err := c.u16(); err != nil { // dependency id, unused
		return nil, err
	}
	if _, err := c.u32(); err != nil { // element data size, unused
		return nil, err
	}
	nameOffset, err := c.u32()
	if err != nil {
		return nil, err
	}
	name, err := r.resolveName(c, nameOffset)
	if err != nil {
		return nil, err
	}

	var attrs []attrNode
	if token(tb)&hasMoreFlag != 0 {
		attrs, err = r.decodeAttributes(c, vt, depth)
		if err != nil {
			return nil, err
		}
	}

	closeTok, err := c.u8()
	if err != nil {
		return nil, err
	}
	node := &elementNode{name: name, attrs: attrs}
	if token(closeTok).base() == tokCloseEmptyElement {
		return node, nil
	}
	children, err := r.walkContent(c, int64(len(c.buf)), vt, depth)
	if err != nil {
		return nil, err
	}
	node.children = children
	if endTok, err := c.peekByte(); err == nil && token(endTok).base() == tokEndElement {
		c.u8()
	}
	return node, nil
}

func (r *renderPass) decodeAttributes(c *cursor, vt []rawValue, depth int) ([]attrNode, error) {
	var attrs []attrNode
	for {
		tb, err := c.u8()
		if err != nil {
			return nil, err
		}
		nameOffset, err := c.u32()
		if err != nil {
			return nil, err
		}
		name, err := r.resolveName(c, nameOffset)
		if err != nil {
			return nil, err
		}
		text, err := r.decodeAttributeValueText(c, vt, depth)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attrNode{name: name, text: text})
		if token(tb)&hasMoreFlag == 0 {
			return attrs, nil
		}
	}
}

func (r *renderPass) decodeAttributeValueText(c *cursor, vt []rawValue, depth int) (string, error) {
	tb, err := c.peekByte()
	if err != nil {
		return "", err
	}
	switch token(tb).base() {
	case tokValue:
		it, err := r.decodeValueToken(c)
		if err != nil {
			return "", err
		}
		return r.attributeValueText(it, depth)
	case tokNormalSubstitution, tokOptionalSubstitution:
		it, skip, err := r.decodeSubstitution(c, vt)
		if err != nil {
			return "", err
		}
		if skip {
			return "", nil
		}
		return r.attributeValueText(it, depth)
	default:
		return "", fmt.Errorf("attribute value token %#x not recognized at offset %d", tb, c.pos)
	}
}

// attributeValueText renders a value-shaped attribute, recursing into an
// embedded vtBinXml document and flattening it to markup text (an
// attribute value cannot itself branch into child elements) and decoding
// a vtEvtXml fragment as plain escaped text, since raw markup would break
// the surrounding quoting.
func (r *renderPass) attributeValueText(it contentItem, depth int) (string, error) {
	if it.value != nil {
		switch it.value.vt.base() {
		case vtBinXml:
			children, err := r.decodeBinXmlValue(it.value, depth)
			if err != nil {
				return "", err
			}
			var sb strings.Builder
			for _, ch := range children {
				writeContentItemXML(&sb, ch)
			}
			return sb.String(), nil
		case vtEvtXml:
			return xmlEscape(decodeStringValue(it.value.data)), nil
		}
	}
	return contentItemXMLText(it), nil
}

func (r *renderPass) decodeValueToken(c *cursor) (contentItem, error) {
	c.u8() // token
	vtb, err := c.u8()
	if err != nil {
		return contentItem{}, err
	}
	n, err := c.u16()
	if err != nil {
		return contentItem{}, err
	}
	dataOffset := c.pos
	data, err := c.bytes(int64(n))
	if err != nil {
		return contentItem{}, err
	}
	return contentItem{value: &rawValue{vt: valueType(vtb), data: data, fileOffset: dataOffset}}, nil
}

func (r *renderPass) decodeSubstitution(c *cursor, vt []rawValue) (item contentItem, skip bool, err error) {
	tb, err := c.u8()
	if err != nil {
		return contentItem{}, false, err
	}
	slotID, err := c.u16()
	if err != nil {
		return contentItem{}, false, err
	}
	declared, err := c.u8()
	if err != nil {
		return contentItem{}, false, err
	}
	optional := token(tb).base() == tokOptionalSubstitution

	rv := lookupSlot(vt, slotID)
	if rv == nil {
		if optional {
			return contentItem{}, true, nil
		}
		return contentItem{value: &rawValue{vt: valueType(declared)}}, false, nil
	}
	if optional && (rv.vt.base() == vtNull || len(rv.data) == 0) {
		return contentItem{}, true, nil
	}
	return contentItem{value: rv}, false, nil
}

// spliceBinXmlValue expands a value-shaped content item in place when its
// type needs more than a plain scalar text rendering (spec §4.3.5): a
// vtBinXml value is itself a nested BinXml document and is recursively
// walked into its own content items; a vtEvtXml value is an already-
// serialized XML fragment and is passed through as raw markup rather than
// escaped text. Anything else is returned unchanged, as the sole element
// of the result.
func (r *renderPass) spliceBinXmlValue(it contentItem, depth int) ([]contentItem, error) {
	if it.value == nil {
		return []contentItem{it}, nil
	}
	switch it.value.vt.base() {
	case vtBinXml:
		children, err := r.decodeBinXmlValue(it.value, depth)
		if err != nil {
			return nil, err
		}
		return children, nil
	case vtEvtXml:
		return []contentItem{{text: decodeStringValue(it.value.data), isRawXML: true}}, nil
	default:
		return []contentItem{it}, nil
	}
}

// decodeBinXmlValue recurses into a vtBinXml value's own bytes (spec
// §4.3.5): they are a nested BinXml document addressed with the same
// chunk-relative offsets as the enclosing record, so back-references into
// the chunk's shared name/template caches still resolve; a leading
// FragmentHeader, if present, is skipped the same way a template body's is.
func (r *renderPass) decodeBinXmlValue(rv *rawValue, depth int) ([]contentItem, error) {
	if depth >= maxDepth {
		return nil, fmt.Errorf("embedded binxml nesting exceeds %d", maxDepth)
	}
	c := &cursor{buf: r.d.buf, pos: rv.fileOffset}
	end := rv.fileOffset + int64(len(rv.data))
	if err := r.skipBodyFragmentHeader(c); err != nil {
		return nil, err
	}
	return r.walkContent(c, end, nil, depth+1)
}

func (r *renderPass) readLengthPrefixedString(c *cursor) (string, error) {
	c.u8() // token
	n, err := c.u16()
	if err != nil {
		return "", err
	}
	units, err := c.utf16le(int64(n))
	if err != nil {
		return "", err
	}
	return utf16ToString(units), nil
}

// resolveName reads or looks up an element/attribute name, warning when a
// back-reference cannot be resolved.
func (r *renderPass) resolveName(c *cursor, nameOffset uint32) (string, error) {
	name, ok, err := r.nr.resolveName(c, nameOffset)
	if err != nil {
		return "", err
	}
	if !ok {
		r.warn(fmt.Sprintf("unresolved name back-reference at offset %d", nameOffset))
	}
	return name, nil
}

func (r *renderPass) skipPI(c *cursor) error {
	c.u8() // PITarget token
	if _, err := r.nr.decodeInlineOrRefName(c); err != nil {
		return err
	}
	tb, err := c.peekByte()
	if err == nil && token(tb).base() == tokPIData {
		c.u8()
		if _, err := r.readLengthPrefixedString(c); err != nil {
			return err
		}
	}
	return nil
}

// decodeTemplateInstanceTree resolves a TemplateInstance token into a
// single synthetic wrapper node whose children are the rendered template
// body, per spec §4.3.4. In XML mode the compiled fast path (compileBody,
// then stitchCompiled) is tried first and the structural walk of the body
// runs only when compilation bailed; JSON mode always takes the walk.
func (r *renderPass) decodeTemplateInstanceTree(c *cursor, outerVT []rawValue, depth int) (*elementNode, error) {
	_ = outerVT
	desc, bodyAbs, dataSize, err := r.resolveTemplateInstance(c)
	if err != nil {
		return nil, err
	}
	valueTable, err := r.readValueTable(c)
	if err != nil {
		return nil, err
	}

	if r.d.format == FormatXML {
		compiled, found := r.d.compiled.Lookup(desc.GUID)
		if !found {
			compiled = r.d.compileBody(bodyAbs, dataSize)
			r.d.compiled.Store(desc.GUID, compiled)
		}
		if compiled != nil {
			text, err := r.stitchCompiled(compiled, valueTable, depth)
			if err != nil {
				return nil, err
			}
			return &elementNode{children: []contentItem{{text: text, isRawXML: true}}}, nil
		}
	}

	bodyCursor := &cursor{buf: r.d.buf, pos: bodyAbs}
	if err := r.skipBodyFragmentHeader(bodyCursor); err != nil {
		return nil, err
	}
	children, err := r.walkContent(bodyCursor, bodyAbs+int64(dataSize), valueTable, depth)
	if err != nil {
		return nil, err
	}
	return &elementNode{children: children}, nil
}

// resolveTemplateInstance reads the 10-byte TemplateInstance header and
// returns the template's descriptor plus its body's absolute offset and
// declared size, registering newly-encountered inline definitions in the
// chunk's template cache (spec §4.3.4).
func (r *renderPass) resolveTemplateInstance(c *cursor) (desc chunk.TemplateDescriptor, bodyAbsOffset int64, dataSize uint32, err error) {
	if _, err = c.u8(); err != nil { // token
		return
	}
	if _, err = c.u8(); err != nil { // reserved
		return
	}
	if _, err = c.u32(); err != nil { // reserved / template id hash
		return
	}
	defDataOffset, err := c.u32()
	if err != nil {
		return
	}

	if r.relOffset(c.pos) == defDataOffset {
		defAbs := r.d.chunkFileOffset + int64(defDataOffset)
		if defAbs+24 > int64(len(r.d.buf)) {
			return desc, 0, 0, fmt.Errorf("inline template definition at %d out of bounds", defAbs)
		}
		header := r.d.buf[defAbs : defAbs+24]
		guid := chunk.WindowsGUID(header[4:20])
		size := binary.LittleEndian.Uint32(header[20:24])
		desc = chunk.TemplateDescriptor{GUID: guid, DataSize: size, DataFileOffset: defAbs + 24}
		r.d.state.Templates[defDataOffset] = desc
		if err = c.skip(24 + int64(size)); err != nil {
			return
		}
		return desc, desc.DataFileOffset, desc.DataSize, nil
	}

	found, ok := r.d.state.Templates[defDataOffset]
	if !ok {
		return desc, 0, 0, fmt.Errorf("unresolved template back-reference at offset %d", defDataOffset)
	}
	return found, found.DataFileOffset, found.DataSize, nil
}

// readValueTable reads the substitution descriptor array and concatenated
// value blobs following a TemplateInstance header (spec §4.3.4).
func (r *renderPass) readValueTable(c *cursor) ([]rawValue, error) {
	numValues, err := c.u32()
	if err != nil {
		return nil, err
	}
	type desc struct {
		size uint16
		vt   valueType
	}
	descs := make([]desc, numValues)
	for i := range descs {
		size, err := c.u16()
		if err != nil {
			return nil, err
		}
		vtb, err := c.u8()
		if err != nil {
			return nil, err
		}
		if _, err := c.u8(); err != nil { // reserved
			return nil, err
		}
		descs[i] = desc{size: size, vt: valueType(vtb)}
	}
	table := make([]rawValue, numValues)
	for i, dsc := range descs {
		dataOffset := c.pos
		data, err := c.bytes(int64(dsc.size))
		if err != nil {
			return nil, err
		}
		table[i] = rawValue{vt: dsc.vt, data: data, fileOffset: dataOffset}
	}
	return table, nil
}

func (r *renderPass) skipBodyFragmentHeader(c *cursor) error {
	tb, err := c.peekByte()
	if err != nil {
		return err
	}
	if token(tb).base() == tokFragmentHeader {
		return c.skip(4)
	}
	return nil
}

func lookupSlot(vt []rawValue, slotID uint16) *rawValue {
	if int(slotID) < 0 || int(slotID) >= len(vt) {
		return nil
	}
	return &vt[int(slotID)]
}
