package hexframe

import "testing"

func TestParseBigEndian(t *testing.T) {
	c := NewCursor("c582")
	v, err := c.ParseBigEndian(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0xc582 {
		t.Fatalf("got %x, want c582", v)
	}
	if c.Len() != 0 {
		t.Fatalf("expected cursor exhausted, %d digits remain", c.Len())
	}
}

func TestParseLittleEndianReversesBytes(t *testing.T) {
	c := NewCursor("01020304")
	v, err := c.ParseLittleEndian(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x04030201 {
		t.Fatalf("got %x, want 04030201", v)
	}
}

func TestParseLittleEndianRejectsOddWidth(t *testing.T) {
	c := NewCursor("010203")
	if _, err := c.ParseLittleEndian(3); err == nil {
		t.Fatal("expected error for odd nibble width")
	}
}

func TestIgnoreAdvancesCursor(t *testing.T) {
	c := NewCursor("aabbcc")
	if err := c.Ignore(4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Rest() != "cc" {
		t.Fatalf("got rest %q, want cc", c.Rest())
	}
}

func TestParseBigEndianTooShort(t *testing.T) {
	c := NewCursor("ab")
	if _, err := c.ParseBigEndian(4); err == nil {
		t.Fatal("expected error reading past the end of the frame")
	}
}

func TestParseBigEndianRejectsNonHex(t *testing.T) {
	c := NewCursor("zzzz")
	if _, err := c.ParseBigEndian(4); err == nil {
		t.Fatal("expected error for non-hex digits")
	}
}

func TestNewCursorStripsWhitespace(t *testing.T) {
	c := NewCursor("c5 82 a1")
	if c.Len() != 6 {
		t.Fatalf("got %d digits, want 6 after stripping whitespace", c.Len())
	}
}

func TestSignExtend(t *testing.T) {
	if got := SignExtend(0xFF, 8); got != -1 {
		t.Fatalf("SignExtend(0xFF, 8) = %d, want -1", got)
	}
	if got := SignExtend(0x7F, 8); got != 127 {
		t.Fatalf("SignExtend(0x7F, 8) = %d, want 127", got)
	}
	if got := SignExtend(0x0F, 8); got != 15 {
		t.Fatalf("SignExtend(0x0F, 8) = %d, want 15", got)
	}
}
