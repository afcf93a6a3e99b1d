package binxml

import "testing"

func TestUtf16ToStringBasic(t *testing.T) {
	// "Hi" in UTF-16LE code units.
	got := utf16ToString([]uint16{'H', 'i'})
	if got != "Hi" {
		t.Errorf("utf16ToString = %q, want %q", got, "Hi")
	}
}

func TestUtf16ToStringSurrogatePair(t *testing.T) {
	// U+1F600 GRINNING FACE encodes as the surrogate pair D83D DE00.
	got := utf16ToString([]uint16{0xD83D, 0xDE00})
	want := "😀"
	if got != want {
		t.Errorf("utf16ToString = %q, want %q", got, want)
	}
}

func TestUtf16ToStringUnpairedHighSurrogate(t *testing.T) {
	got := utf16ToString([]uint16{0xD800, 'x'})
	want := "�x"
	if got != want {
		t.Errorf("utf16ToString = %q, want %q", got, want)
	}
}

func TestUtf16ToStringUnpairedLowSurrogate(t *testing.T) {
	got := utf16ToString([]uint16{0xDC00})
	want := "�"
	if got != want {
		t.Errorf("utf16ToString = %q, want %q", got, want)
	}
}

func TestUtf16ToStringTrailingHighSurrogate(t *testing.T) {
	got := utf16ToString([]uint16{'x', 0xD800})
	want := "x�"
	if got != want {
		t.Errorf("utf16ToString = %q, want %q", got, want)
	}
}

func TestXMLEscape(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`a&b`, "a&amp;b"},
		{`<tag>`, "&lt;tag&gt;"},
		{`"quoted"`, "&quot;quoted&quot;"},
		{`it's`, "it&apos;s"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		if got := xmlEscape(tc.in); got != tc.want {
			t.Errorf("xmlEscape(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestXMLEntityNames(t *testing.T) {
	if xmlEntityNames["amp"] != '&' || xmlEntityNames["lt"] != '<' || xmlEntityNames["apos"] != '\'' {
		t.Error("xmlEntityNames missing expected standard entities")
	}
}
