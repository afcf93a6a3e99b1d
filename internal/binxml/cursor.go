package binxml

import (
	"encoding/binary"
	"fmt"
)

// cursor is a bounds-checked reader over the shared, immutable file buffer,
// positioned with an absolute byte offset.
type cursor struct {
	buf []byte
	pos int64
}

func (c *cursor) remaining() int64 { return int64(len(c.buf)) - c.pos }

func (c *cursor) require(n int64) error {
	if n < 0 || c.pos < 0 || c.pos+n > int64(len(c.buf)) {
		return fmt.Errorf("short buffer: need %d bytes at offset %d, have %d total", n, c.pos, len(c.buf))
	}
	return nil
}

func (c *cursor) peekByte() (byte, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	return c.buf[c.pos], nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) skip(n int64) error {
	if err := c.require(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

func (c *cursor) bytes(n int64) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// utf16le decodes n UTF-16LE code units starting at the cursor.
func (c *cursor) utf16le(n int64) ([]uint16, error) {
	b, err := c.bytes(n * 2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return out, nil
}
