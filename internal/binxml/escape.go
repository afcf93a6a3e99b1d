package binxml

import "strings"

// utf16ToString decodes UTF-16LE code units into a string, replacing any
// unpaired surrogate with U+FFFD so the result always encodes cleanly to
// UTF-8 (spec §4.3.6, testable property 17).
func utf16ToString(units []uint16) string {
	var sb strings.Builder
	sb.Grow(len(units))
	for i := 0; i < len(units); i++ {
		r := units[i]
		switch {
		case r >= 0xD800 && r <= 0xDBFF: // high surrogate
			if i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
				lo := units[i+1]
				cp := 0x10000 + (rune(r)-0xD800)<<10 + (rune(lo) - 0xDC00)
				sb.WriteRune(cp)
				i++
			} else {
				sb.WriteRune('�')
			}
		case r >= 0xDC00 && r <= 0xDFFF: // unpaired low surrogate
			sb.WriteRune('�')
		default:
			sb.WriteRune(rune(r))
		}
	}
	return sb.String()
}

// xmlEscape replaces & < > " ' with their entity forms.
func xmlEscape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '"':
			sb.WriteString("&quot;")
		case '\'':
			sb.WriteString("&apos;")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// xmlEntityNames maps the five standard XML entity names to their literal
// characters, used when decoding an EntityRef in either format (spec
// §4.3.3): XML output escapes the character again, JSON emits it as-is.
var xmlEntityNames = map[string]rune{
	"amp":  '&',
	"lt":   '<',
	"gt":   '>',
	"quot": '"',
	"apos": '\'',
}
