package panel

import "unicode/utf8"

const hexDigits = "0123456789abcdef"

// AppendJSON appends the readout object, label to current value, to dst.
func (p *Panel) AppendJSON(dst []byte) []byte {
	dst = append(dst, '{')
	for i, v := range p.Values() {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = AppendString(dst, v.Label)
		dst = append(dst, ':')
		dst = AppendString(dst, v.Value)
	}
	return append(dst, '}')
}

// AppendString appends s as a quoted JSON string. Angle brackets and
// ampersands are escaped so the output is safe inside a script element.
func AppendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			switch {
			case r == utf8.RuneError && size == 1:
				dst = append(dst, `\ufffd`...)
			case r == '\u2028' || r == '\u2029':
				dst = append(dst, `\u202`...)
				dst = append(dst, hexDigits[r&0xf])
			default:
				dst = append(dst, s[i:i+size]...)
			}
			i += size
			continue
		}
		switch c {
		case '"':
			dst = append(dst, `\"`...)
		case '\\':
			dst = append(dst, `\\`...)
		case '\n':
			dst = append(dst, `\n`...)
		case '\r':
			dst = append(dst, `\r`...)
		case '\t':
			dst = append(dst, `\t`...)
		case '<', '>', '&':
			dst = append(dst, `\u00`...)
			dst = append(dst, hexDigits[c>>4], hexDigits[c&0xf])
		default:
			if c < 0x20 {
				dst = append(dst, `\u00`...)
				dst = append(dst, hexDigits[c>>4], hexDigits[c&0xf])
			} else {
				dst = append(dst, c)
			}
		}
		i++
	}
	return append(dst, '"')
}
