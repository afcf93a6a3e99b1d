package binxml

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// filetimeText renders a 64-bit Windows FILETIME (100ns ticks since
// 1601-01-01 UTC) as ISO-8601 with 100ns (7-digit) fractional precision, or
// "" if ticks is zero (spec §4.3.5).
func filetimeText(ticks uint64) string {
	if ticks == 0 {
		return ""
	}
	const ticksPerSecond = 10_000_000
	const windowsToUnixEpochSeconds = 11644473600
	unixSeconds := int64(ticks/ticksPerSecond) - windowsToUnixEpochSeconds
	frac := ticks % ticksPerSecond

	y, mo, d, h, mi, s := civilFromUnix(unixSeconds)
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%07dZ", y, mo, d, h, mi, s, frac)
}

// civilFromUnix converts a Unix-epoch second count into its UTC calendar
// components without pulling in the time package's monotonic/location
// machinery, which this purely numeric conversion does not need.
func civilFromUnix(sec int64) (year, month, day, hour, min, second int) {
	days := sec / 86400
	rem := sec % 86400
	if rem < 0 {
		rem += 86400
		days--
	}
	hour = int(rem / 3600)
	min = int((rem % 3600) / 60)
	second = int(rem % 60)

	// Civil-from-days algorithm (Howard Hinnant's public-domain chrono
	// algorithm), epoch 1970-01-01.
	z := days + 719468
	era := z
	if era < 0 {
		era -= 146096
	}
	era /= 146097
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	m := mp + 3
	if mp >= 10 {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return int(y), int(m), int(d), hour, min, second
}

// systemTimeText renders the eight u16 fields of a SystemTime value as
// ISO-8601 with millisecond precision (spec §4.3.5). Field order is
// year, month, dayOfWeek, day, hour, minute, second, milliseconds.
func systemTimeText(b []byte) string {
	year := binary.LittleEndian.Uint16(b[0:2])
	month := binary.LittleEndian.Uint16(b[2:4])
	day := binary.LittleEndian.Uint16(b[6:8])
	hour := binary.LittleEndian.Uint16(b[8:10])
	minute := binary.LittleEndian.Uint16(b[10:12])
	second := binary.LittleEndian.Uint16(b[12:14])
	ms := binary.LittleEndian.Uint16(b[14:16])
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03dZ", year, month, day, hour, minute, second, ms)
}

// sidText renders a SID per spec §4.3.5: revision(1), subAuthCount(1),
// authority(6, big-endian), then subAuthCount little-endian uint32s.
func sidText(b []byte) string {
	if len(b) < 8 {
		return hexBytes(b)
	}
	revision := b[0]
	subAuthCount := int(b[1])
	var authority uint64
	for i := 0; i < 6; i++ {
		authority = authority<<8 | uint64(b[2+i])
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", revision, authority)
	off := 8
	for i := 0; i < subAuthCount && off+4 <= len(b); i++ {
		sub := binary.LittleEndian.Uint32(b[off : off+4])
		fmt.Fprintf(&sb, "-%d", sub)
		off += 4
	}
	return sb.String()
}

// sidWidth returns the byte width of a SID given its subauthority count,
// used to split SID arrays (spec §4.3.5).
func sidWidth(b []byte) int {
	if len(b) < 2 {
		return len(b)
	}
	return 8 + 4*int(b[1])
}

func hexBytes(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// valueXMLText renders a value of either shape (scalar or array) to XML
// text, dispatching on the 0x80 array flag.
func valueXMLText(vt valueType, data []byte) string {
	if vt.isArray() {
		return arrayXMLText(vt, data)
	}
	return scalarXMLText(vt.base(), data)
}

// scalarXMLText renders a single (non-array) value's XML text form, per
// spec §4.3.5. String values are already-escaped on return.
func scalarXMLText(vt valueType, data []byte) string {
	switch vt {
	case vtNull:
		return ""
	case vtString:
		return xmlEscape(decodeStringValue(data))
	case vtAnsiString:
		return xmlEscape(decodeAnsiString(data))
	case vtInt8:
		if len(data) < 1 {
			return ""
		}
		return strconv.FormatInt(int64(int8(data[0])), 10)
	case vtUInt8:
		if len(data) < 1 {
			return ""
		}
		return strconv.FormatUint(uint64(data[0]), 10)
	case vtInt16:
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(pad(data, 2)))), 10)
	case vtUInt16:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(pad(data, 2))), 10)
	case vtInt32:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(pad(data, 4)))), 10)
	case vtUInt32:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(pad(data, 4))), 10)
	case vtInt64:
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(pad(data, 8))), 10)
	case vtUInt64:
		return strconv.FormatUint(binary.LittleEndian.Uint64(pad(data, 8)), 10)
	case vtReal32:
		return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(pad(data, 4)))), 'g', -1, 32)
	case vtReal64:
		return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(pad(data, 8))), 'g', -1, 64)
	case vtBool:
		if binary.LittleEndian.Uint32(pad(data, 4)) != 0 {
			return "true"
		}
		return "false"
	case vtBinary:
		return hexBytes(data)
	case vtGuid:
		if len(data) < 16 {
			return hexBytes(data)
		}
		return windowsGUIDText(data)
	case vtSizeT:
		return sizeTText(data)
	case vtFileTime:
		return filetimeText(binary.LittleEndian.Uint64(pad(data, 8)))
	case vtSystemTime:
		if len(data) < 16 {
			return hexBytes(data)
		}
		return systemTimeText(data)
	case vtSid:
		return sidText(data)
	case vtHexInt32:
		return fmt.Sprintf("0x%08x", binary.LittleEndian.Uint32(pad(data, 4)))
	case vtHexInt64:
		return fmt.Sprintf("0x%016x", binary.LittleEndian.Uint64(pad(data, 8)))
	default: // EvtHandle, EvtXml, BinXml (handled by caller), unknown
		return hexBytes(data)
	}
}

func sizeTText(data []byte) string {
	switch len(data) {
	case 4:
		return fmt.Sprintf("0x%08x", binary.LittleEndian.Uint32(data))
	case 8:
		return fmt.Sprintf("0x%016x", binary.LittleEndian.Uint64(data))
	default:
		return hexBytes(data)
	}
}

// pad right-pads data with zero bytes up to n so malformed/short value blobs
// decode to a best-effort zero rather than panicking.
func pad(data []byte, n int) []byte {
	if len(data) >= n {
		return data[:n]
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

func decodeStringValue(data []byte) string {
	n := len(data) / 2
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	if n > 0 && units[n-1] == 0 {
		units = units[:n-1]
	}
	return utf16ToString(units)
}

func decodeAnsiString(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		if b == 0 {
			break
		}
		sb.WriteRune(rune(b & 0x7F))
	}
	return sb.String()
}

// splitArrayElements divides an array value's backing bytes into its
// per-element byte slices: NUL-separated for String, width-from-subauth-
// count for Sid, fixed element width for everything else with a known
// width. It returns ok=false when the base type has no defined array
// splitting (the caller then falls back to rendering the raw blob as hex).
func splitArrayElements(base valueType, data []byte) (elems [][]byte, ok bool) {
	switch base {
	case vtString:
		units := make([]uint16, len(data)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(data[i*2:])
		}
		var cur []int
		flush := func() {
			if len(cur) > 0 {
				b := make([]byte, len(cur)*2)
				for i, ui := range cur {
					binary.LittleEndian.PutUint16(b[i*2:], units[ui])
				}
				elems = append(elems, b)
				cur = nil
			}
		}
		for i, u := range units {
			if u == 0 {
				flush()
				continue
			}
			cur = append(cur, i)
		}
		flush()
		return elems, true
	case vtSid:
		rest := data
		for len(rest) >= 2 {
			w := sidWidth(rest)
			if w <= 0 || w > len(rest) {
				break
			}
			elems = append(elems, rest[:w])
			rest = rest[w:]
		}
		return elems, true
	}
	if width, ok := fixedWidth(base); ok && width > 0 {
		for off := 0; off+width <= len(data); off += width {
			elems = append(elems, data[off:off+width])
		}
		return elems, true
	}
	return nil, false
}

// arrayXMLText renders an array value (0x80 set) as a comma-and-space
// separated list per spec §4.3.5.
func arrayXMLText(vt valueType, data []byte) string {
	base := vt.base()
	elems, ok := splitArrayElements(base, data)
	if !ok {
		return hexBytes(data)
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		if base == vtString {
			parts[i] = xmlEscape(decodeStringValue(e))
		} else {
			parts[i] = scalarXMLText(base, e)
		}
	}
	return strings.Join(parts, ", ")
}
