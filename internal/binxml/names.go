package binxml

import "github.com/evtx-go/evtxcore/internal/chunk"

// nameResolver implements the inline-vs-back-reference name lookup shared
// by the renderer and the template compiler: a name is inline iff its
// chunk-relative offset equals the cursor's current chunk-relative
// position (the same rule spec §4.2 uses for template definitions).
type nameResolver struct {
	buf             []byte
	chunkFileOffset int64
	state           *chunk.State
}

func (nr *nameResolver) relOffset(pos int64) uint32 { return uint32(pos - nr.chunkFileOffset) }

// resolveName reads or looks up a name at nameOffset. ok is false only for
// an unresolved back-reference (no warning is raised here; callers decide
// whether that is worth reporting).
func (nr *nameResolver) resolveName(c *cursor, nameOffset uint32) (name string, ok bool, err error) {
	if nr.relOffset(c.pos) == nameOffset {
		if _, err = c.bytes(4); err != nil { // next-name offset, unused
			return "", false, err
		}
		if _, err = c.u16(); err != nil { // name hash, unused
			return "", false, err
		}
		var n uint16
		if n, err = c.u16(); err != nil {
			return "", false, err
		}
		units, uerr := c.utf16le(int64(n))
		if uerr != nil {
			return "", false, uerr
		}
		if _, err = c.u16(); err != nil { // null terminator
			return "", false, err
		}
		name = utf16ToString(units)
		nr.state.Names[nameOffset] = name
		return name, true, nil
	}
	if name, found := nr.state.Names[nameOffset]; found {
		return name, true, nil
	}
	return "", false, nil
}

// decodeInlineOrRefName reads a PITarget/EntityRef name, which is always
// encoded inline at the cursor.
func (nr *nameResolver) decodeInlineOrRefName(c *cursor) (string, error) {
	if _, err := c.bytes(4); err != nil { // next-name offset, unused
		return "", err
	}
	if _, err := c.u16(); err != nil { // name hash, unused
		return "", err
	}
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
