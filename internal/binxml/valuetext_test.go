package binxml

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFiletimeTextZero(t *testing.T) {
	if got := filetimeText(0); got != "" {
		t.Errorf("filetimeText(0) = %q, want empty", got)
	}
}

func TestFiletimeTextKnownValue(t *testing.T) {
	// 2020-01-01T00:00:00Z, computed independently of civilFromUnix.
	const unixSeconds = 1577836800
	const windowsToUnixEpochSeconds = 11644473600
	const ticksPerSecond = 10_000_000
	ticks := uint64(unixSeconds+windowsToUnixEpochSeconds) * ticksPerSecond

	want := "2020-01-01T00:00:00.0000000Z"
	if got := filetimeText(ticks); got != want {
		t.Errorf("filetimeText = %q, want %q", got, want)
	}
}

func TestFiletimeTextFractionalTicks(t *testing.T) {
	const unixSeconds = 1577836800
	const windowsToUnixEpochSeconds = 11644473600
	const ticksPerSecond = 10_000_000
	ticks := uint64(unixSeconds+windowsToUnixEpochSeconds)*ticksPerSecond + 1234567

	want := "2020-01-01T00:00:00.1234567Z"
	if got := filetimeText(ticks); got != want {
		t.Errorf("filetimeText = %q, want %q", got, want)
	}
}

func TestFiletimeTextDoesNotOverflow(t *testing.T) {
	// A naive ticks*100 nanosecond conversion overflows int64 well below
	// math.MaxUint64; filetimeText must not panic for any uint64 input. The
	// maximum lands in year 60056, so the year takes five digits.
	got := filetimeText(math.MaxUint64)
	want := "60056-05-28T05:36:10.9551615Z"
	if got != want {
		t.Errorf("filetimeText(MaxUint64) = %q, want %q", got, want)
	}
}

func TestCivilFromUnixEpoch(t *testing.T) {
	y, mo, d, h, mi, s := civilFromUnix(0)
	if y != 1970 || mo != 1 || d != 1 || h != 0 || mi != 0 || s != 0 {
		t.Errorf("civilFromUnix(0) = %d-%d-%d %d:%d:%d, want 1970-01-01 00:00:00", y, mo, d, h, mi, s)
	}
}

func TestCivilFromUnixNegative(t *testing.T) {
	// One second before the epoch: 1969-12-31T23:59:59Z.
	y, mo, d, h, mi, s := civilFromUnix(-1)
	if y != 1969 || mo != 12 || d != 31 || h != 23 || mi != 59 || s != 59 {
		t.Errorf("civilFromUnix(-1) = %d-%d-%d %d:%d:%d, want 1969-12-31 23:59:59", y, mo, d, h, mi, s)
	}
}

func TestSidText(t *testing.T) {
	b := make([]byte, 8+4*2)
	b[0] = 1 // revision
	b[1] = 2 // subAuthCount
	b[7] = 5 // authority = NT_AUTHORITY
	binary.LittleEndian.PutUint32(b[8:12], 21)
	binary.LittleEndian.PutUint32(b[12:16], 512)

	want := "S-1-5-21-512"
	if got := sidText(b); got != want {
		t.Errorf("sidText = %q, want %q", got, want)
	}
}

func TestSidTextTooShortFallsBackToHex(t *testing.T) {
	b := []byte{0xAB, 0xCD, 0xEF}
	if got := sidText(b); got != hexBytes(b) {
		t.Errorf("sidText(short) = %q, want hex fallback %q", got, hexBytes(b))
	}
}

func TestSidWidth(t *testing.T) {
	b := make([]byte, 8+4*3)
	b[1] = 3
	if w := sidWidth(b); w != 20 {
		t.Errorf("sidWidth = %d, want 20", w)
	}
}

func TestHexBytes(t *testing.T) {
	if got := hexBytes([]byte{0xAB, 0xCD}); got != "ABCD" {
		t.Errorf("hexBytes = %q, want ABCD", got)
	}
}

func TestScalarXMLTextIntegers(t *testing.T) {
	cases := []struct {
		vt   valueType
		data []byte
		want string
	}{
		{vtInt8, []byte{0xFF}, "-1"},
		{vtUInt8, []byte{0xFF}, "255"},
		{vtInt16, []byte{0xFF, 0xFF}, "-1"},
		{vtUInt16, []byte{0x01, 0x00}, "1"},
		{vtInt32, []byte{0xFF, 0xFF, 0xFF, 0xFF}, "-1"},
		{vtUInt32, []byte{0x01, 0x00, 0x00, 0x00}, "1"},
		{vtInt64, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, "-1"},
		{vtUInt64, []byte{0x01, 0, 0, 0, 0, 0, 0, 0}, "1"},
		{vtHexInt32, []byte{0x01, 0x00, 0x00, 0x00}, "0x00000001"},
		{vtHexInt64, []byte{0x01, 0, 0, 0, 0, 0, 0, 0}, "0x0000000000000001"},
	}
	for _, tc := range cases {
		if got := scalarXMLText(tc.vt, tc.data); got != tc.want {
			t.Errorf("scalarXMLText(%v, %v) = %q, want %q", tc.vt, tc.data, got, tc.want)
		}
	}
}

func TestScalarXMLTextBool(t *testing.T) {
	if got := scalarXMLText(vtBool, []byte{1, 0, 0, 0}); got != "true" {
		t.Errorf("scalarXMLText(bool true) = %q, want true", got)
	}
	if got := scalarXMLText(vtBool, []byte{0, 0, 0, 0}); got != "false" {
		t.Errorf("scalarXMLText(bool false) = %q, want false", got)
	}
}

func TestScalarXMLTextReal32(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(1.5))
	if got := scalarXMLText(vtReal32, data); got != "1.5" {
		t.Errorf("scalarXMLText(real32) = %q, want 1.5", got)
	}
}

func TestScalarXMLTextNull(t *testing.T) {
	if got := scalarXMLText(vtNull, nil); got != "" {
		t.Errorf("scalarXMLText(null) = %q, want empty", got)
	}
}

func TestScalarXMLTextGuidShortFallsBackToHex(t *testing.T) {
	data := []byte{0x01, 0x02}
	if got := scalarXMLText(vtGuid, data); got != hexBytes(data) {
		t.Errorf("scalarXMLText(short guid) = %q, want hex fallback", got)
	}
}

func TestScalarXMLTextString(t *testing.T) {
	// UTF-16LE "a<b" NUL-terminated.
	data := []byte{'a', 0, '<', 0, 'b', 0, 0, 0}
	want := "a&lt;b"
	if got := scalarXMLText(vtString, data); got != want {
		t.Errorf("scalarXMLText(string) = %q, want %q", got, want)
	}
}

func TestArrayXMLTextFixedWidth(t *testing.T) {
	data := []byte{1, 0, 2, 0} // two little-endian uint16s: 1, 2
	want := "1, 2"
	if got := arrayXMLText(vtUInt16|vtArrayFlag, data); got != want {
		t.Errorf("arrayXMLText = %q, want %q", got, want)
	}
}

func TestArrayXMLTextUnknownWidthFallsBackToHex(t *testing.T) {
	data := []byte{0xAB, 0xCD, 0xEF}
	if got := arrayXMLText(vtBinXml|vtArrayFlag, data); got != hexBytes(data) {
		t.Errorf("arrayXMLText(unsplittable) = %q, want hex fallback", got)
	}
}

func TestSplitArrayElementsString(t *testing.T) {
	// Two NUL-separated UTF-16LE strings: "A" and "B".
	data := []byte{'A', 0, 0, 0, 'B', 0}
	elems, ok := splitArrayElements(vtString, data)
	if !ok {
		t.Fatal("splitArrayElements(vtString) ok = false")
	}
	if len(elems) != 2 {
		t.Fatalf("len(elems) = %d, want 2", len(elems))
	}
	if decodeStringValue(elems[0]) != "A" || decodeStringValue(elems[1]) != "B" {
		t.Errorf("elems decode to %q, %q, want A, B", decodeStringValue(elems[0]), decodeStringValue(elems[1]))
	}
}

func TestSplitArrayElementsSid(t *testing.T) {
	sid1 := make([]byte, 8+4) // subAuthCount 1
	sid1[1] = 1
	sid2 := make([]byte, 8+4*2) // subAuthCount 2
	sid2[1] = 2
	data := append(append([]byte{}, sid1...), sid2...)

	elems, ok := splitArrayElements(vtSid, data)
	if !ok {
		t.Fatal("splitArrayElements(vtSid) ok = false")
	}
	if len(elems) != 2 || len(elems[0]) != len(sid1) || len(elems[1]) != len(sid2) {
		t.Errorf("elems = %v, want lengths [%d %d]", elems, len(sid1), len(sid2))
	}
}
