// Package hexframe parses the hex-encoded bit-packed payloads that every
// LoRaWAN/NB-IoT sensor in internal/decode uses as its wire format.
//
// It is a direct port of the stream-of-chainable-extractors style from
// hex_parser.h: a big-endian parser that reads N hex nibbles in natural
// order, a little-endian parser that reads N hex characters as reversed
// bytes (and requires an even length), and an Ignore step that skips N
// nibbles without decoding them. The original chains these with
// operator>>; Go has no operator overloading, so Cursor exposes the same
// three operations as methods that return an error instead, meant to be
// chained with an early return on the first failure — the same "stop at
// the first malformed field" behavior the stream-failure-bit approach in
// the original gives for free.
package hexframe

import (
	"fmt"
	"strconv"
	"strings"
)

// Cursor walks a hex-digit string left to right, handing out big-endian
// or little-endian integer fields as it goes.
type Cursor struct {
	digits string
	pos    int
}

// NewCursor builds a Cursor over payload, tolerating (and stripping)
// embedded whitespace the way the original's stream extraction does.
func NewCursor(payload string) *Cursor {
	return &Cursor{digits: strings.Join(strings.Fields(payload), "")}
}

// Len returns the number of hex digits remaining.
func (c *Cursor) Len() int { return len(c.digits) - c.pos }

// ParseBigEndian reads nibbles hex digits in natural (big-endian) nibble
// order and returns them as an unsigned integer.
func (c *Cursor) ParseBigEndian(nibbles int) (uint64, error) {
	if nibbles <= 0 {
		return 0, fmt.Errorf("hexframe: big-endian field width must be positive, got %d", nibbles)
	}
	if c.Len() < nibbles {
		return 0, fmt.Errorf("hexframe: need %d more hex digits, only %d remain", nibbles, c.Len())
	}
	field := c.digits[c.pos : c.pos+nibbles]
	v, err := strconv.ParseUint(field, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hexframe: invalid hex field %q: %w", field, err)
	}
	c.pos += nibbles
	return v, nil
}

// ParseLittleEndian reads nibbles hex digits (must be even, since it
// operates on whole bytes) and reverses byte order before decoding, the
// way hex_parser.h's ParserLittleEndian does.
func (c *Cursor) ParseLittleEndian(nibbles int) (uint64, error) {
	if nibbles <= 0 || nibbles%2 != 0 {
		return 0, fmt.Errorf("hexframe: little-endian field width must be a positive even number, got %d", nibbles)
	}
	if c.Len() < nibbles {
		return 0, fmt.Errorf("hexframe: need %d more hex digits, only %d remain", nibbles, c.Len())
	}
	field := c.digits[c.pos : c.pos+nibbles]
	c.pos += nibbles

	var reversed strings.Builder
	for i := len(field); i > 0; i -= 2 {
		reversed.WriteString(field[i-2 : i])
	}
	v, err := strconv.ParseUint(reversed.String(), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hexframe: invalid hex field %q: %w", field, err)
	}
	return v, nil
}

// Ignore skips nibbles hex digits without decoding them.
func (c *Cursor) Ignore(nibbles int) error {
	if c.Len() < nibbles {
		return fmt.Errorf("hexframe: cannot ignore %d digits, only %d remain", nibbles, c.Len())
	}
	c.pos += nibbles
	return nil
}

// Rest returns whatever hex digits remain unconsumed.
func (c *Cursor) Rest() string { return c.digits[c.pos:] }

// SignExtend reinterprets the low `bits` bits of v as a two's-complement
// signed integer — used by decoders whose fields are signed.
func SignExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}
