package cpu

// Cursor is the byte-stream abstraction the decoder reads through. It never
// touches cycle accounting itself — during execution it wraps the bytes
// fetchWindow read from the bus, whose fetch cost is discarded — which
// keeps the decoder testable against a plain byte slice.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor wraps data for decoding starting at offset 0.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Tell returns the number of bytes consumed so far.
func (c *Cursor) Tell() int { return c.pos }

// ReadU8 consumes and returns one byte, or 0 with ok=false past the end.
func (c *Cursor) ReadU8() (byte, bool) {
	if c.pos >= len(c.data) {
		return 0, false
	}
	v := c.data[c.pos]
	c.pos++
	return v, true
}

// ReadI8 consumes one signed byte.
func (c *Cursor) ReadI8() (int8, bool) {
	v, ok := c.ReadU8()
	return int8(v), ok
}

// ReadU16 consumes a little-endian word.
func (c *Cursor) ReadU16() (uint16, bool) {
	lo, ok := c.ReadU8()
	if !ok {
		return 0, false
	}
	hi, ok := c.ReadU8()
	if !ok {
		return 0, false
	}
	return uint16(lo) | uint16(hi)<<8, true
}

// ReadI16 consumes a little-endian signed word.
func (c *Cursor) ReadI16() (int16, bool) {
	v, ok := c.ReadU16()
	return int16(v), ok
}

// Peek returns the next byte without consuming it.
func (c *Cursor) Peek() (byte, bool) {
	if c.pos >= len(c.data) {
		return 0, false
	}
	return c.data[c.pos], true
}
