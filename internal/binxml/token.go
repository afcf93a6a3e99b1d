// Package binxml implements the BinXml decoder and renderer of spec §4.3:
// a recursive-descent interpreter over Microsoft's one-byte token alphabet
// that emits either XML text or a JSON document tree.
package binxml

// token is the one-byte BinXml token alphabet (spec §4.3).
type token byte

const (
	tokEOF                  token = 0x00
	tokOpenStartElement     token = 0x01
	tokCloseStartElement    token = 0x02
	tokCloseEmptyElement    token = 0x03
	tokEndElement           token = 0x04
	tokValue                token = 0x05
	tokAttribute            token = 0x06
	tokCDataSection         token = 0x07
	tokCharRef              token = 0x08
	tokEntityRef            token = 0x09
	tokPITarget             token = 0x0A
	tokPIData               token = 0x0B
	tokTemplateInstance     token = 0x0C
	tokNormalSubstitution   token = 0x0D
	tokOptionalSubstitution token = 0x0E
	tokFragmentHeader       token = 0x0F
)

// hasMoreFlag is the 0x40 bit carried by Value, Attribute, CDataSection,
// CharRef, EntityRef (more-data) and OpenStartElement (has-attribute-list).
// It is masked off before dispatch. The decoder and compiler read it in two
// places: on OpenStartElement it means an attribute list follows, and on
// Attribute it means another attribute follows this one.
const hasMoreFlag = 0x40

func (t token) base() token { return t &^ hasMoreFlag }

// valueType is the one-byte value-type alphabet (spec §4.3).
type valueType byte

const (
	vtNull       valueType = 0x00
	vtString     valueType = 0x01
	vtAnsiString valueType = 0x02
	vtInt8       valueType = 0x03
	vtUInt8      valueType = 0x04
	vtInt16      valueType = 0x05
	vtUInt16     valueType = 0x06
	vtInt32      valueType = 0x07
	vtUInt32     valueType = 0x08
	vtInt64      valueType = 0x09
	vtUInt64     valueType = 0x0A
	vtReal32     valueType = 0x0B
	vtReal64     valueType = 0x0C
	vtBool       valueType = 0x0D
	vtBinary     valueType = 0x0E
	vtGuid       valueType = 0x0F
	vtSizeT      valueType = 0x10
	vtFileTime   valueType = 0x11
	vtSystemTime valueType = 0x12
	vtSid        valueType = 0x13
	vtHexInt32   valueType = 0x14
	vtHexInt64   valueType = 0x15
	vtEvtHandle  valueType = 0x20
	vtBinXml     valueType = 0x21
	vtEvtXml     valueType = 0x23
)

const vtArrayFlag = 0x80

func (t valueType) base() valueType { return t &^ vtArrayFlag }
func (t valueType) isArray() bool   { return t&vtArrayFlag != 0 }

// fixedWidth returns the element width in bytes of base value types with a
// constant size, and ok=false for variable-width types (String, AnsiString,
// Binary, Sid, SizeT, BinXml, EvtXml, EvtHandle).
func fixedWidth(base valueType) (n int, ok bool) {
	switch base {
	case vtInt8, vtUInt8:
		return 1, true
	case vtInt16, vtUInt16:
		return 2, true
	case vtInt32, vtUInt32, vtReal32, vtBool, vtHexInt32:
		return 4, true
	case vtInt64, vtUInt64, vtReal64, vtFileTime, vtHexInt64:
		return 8, true
	case vtGuid, vtSystemTime:
		return 16, true
	}
	return 0, false
}
