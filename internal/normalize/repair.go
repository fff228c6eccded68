package normalize

import (
	"fmt"
	"strings"
)

// repairEscaping rewrites almost-JSON into JSON. It is a single left-to-right
// scan, not a tokenizer: string boundaries are guessed from what follows a
// quote, so content that itself looks like a string terminator (a quote
// followed by a comma, for instance) is still split at that point.
//
// Inside strings it escapes raw newlines, carriage returns, tabs, stray
// backslashes and interior double quotes. Outside strings it converts
// single-quoted strings, quotes bare property names and drops trailing commas.
// Already valid JSON passes through unchanged.
func repairEscaping(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/16)

	var (
		inString bool
		delim    byte
		// last non-space byte written outside a string
		prev byte
	)

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case c == '\\':
				i += writeEscape(&b, s, i, delim) - 1
			case c == delim:
				if closesString(s, i+1) {
					b.WriteByte('"')
					inString = false
					prev = '"'
				} else if delim == '"' {
					b.WriteString(`\"`)
				} else {
					b.WriteByte(c)
				}
			case c == '"':
				// single-quoted string carrying a double quote
				b.WriteString(`\"`)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				fmt.Fprintf(&b, `\u%04x`, c)
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			inString = true
			delim = c
			b.WriteByte('"')
		case c == ',':
			if next := nextNonSpace(s, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteByte(c)
			prev = c
		case (prev == '{' || prev == ',') && isIdentStart(c):
			end := i + 1
			for end < len(s) && isIdentPart(s[end]) {
				end++
			}
			ident := s[i:end]
			if nextNonSpace(s, end) == ':' {
				b.WriteByte('"')
				b.WriteString(ident)
				b.WriteByte('"')
				prev = '"'
			} else {
				b.WriteString(ident)
				prev = ident[len(ident)-1]
			}
			i = end - 1
		default:
			b.WriteByte(c)
			if !isSpace(c) {
				prev = c
			}
		}
	}

	return b.String()
}

// writeEscape handles a backslash at s[i] inside a string and returns the
// number of input bytes consumed.
func writeEscape(b *strings.Builder, s string, i int, delim byte) int {
	if i+1 >= len(s) {
		b.WriteString(`\\`)
		return 1
	}
	switch n := s[i+1]; n {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		b.WriteByte('\\')
		b.WriteByte(n)
		return 2
	case 'u':
		if i+6 <= len(s) && isHex4(s[i+2:i+6]) {
			b.WriteString(s[i : i+6])
			return 6
		}
	case '\'':
		if delim == '\'' {
			b.WriteByte('\'')
			return 2
		}
	}
	b.WriteString(`\\`)
	return 1
}

// closesString reports whether a delimiter whose following byte is at s[from]
// ends the string: only structural JSON may follow a closing quote.
func closesString(s string, from int) bool {
	switch nextNonSpace(s, from) {
	case 0, ',', '}', ']', ':':
		return true
	}
	return false
}

// nextNonSpace returns the first non-whitespace byte at or after from, or 0.
func nextNonSpace(s string, from int) byte {
	for j := from; j < len(s); j++ {
		if !isSpace(s[j]) {
			return s[j]
		}
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func isHex4(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return len(s) == 4
}
