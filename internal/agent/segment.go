package agent

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractSentences cuts every complete sentence off the front of buf and
// returns them with the unconsumed remainder. A sentence ends at . ! ? or …
// (plus any closing quotes or brackets) followed by whitespace or the end of
// buf, or at a line break. A digit followed by a lone "." at the very end
// of buf is held back: the next token may continue the number. The function
// is stateless: callers feed it the previous remainder plus new text.
func ExtractSentences(buf string) ([]string, string) {
	var out []string
	start := 0
	i := 0
	for i < len(buf) {
		r, size := utf8.DecodeRuneInString(buf[i:])
		switch {
		case r == '\n':
			if s := strings.TrimSpace(buf[start:i]); s != "" {
				out = append(out, s)
			}
			i += size
			start = i
			continue
		case isTerminal(r):
			end := i + size
			for end < len(buf) {
				next, n := utf8.DecodeRuneInString(buf[end:])
				if !isTerminal(next) && !isCloser(next) {
					break
				}
				end += n
			}
			atEnd := end == len(buf)
			if (atEnd && !pendingDecimal(buf, i, end)) || (!atEnd && startsWithSpace(buf[end:])) {
				if s := strings.TrimSpace(buf[start:end]); s != "" {
					out = append(out, s)
				}
				start = end
			}
			i = end
			continue
		}
		i += size
	}
	return out, strings.TrimLeftFunc(buf[start:], unicode.IsSpace)
}

// pendingDecimal reports whether buf ends in a digit and a single "." at
// dot, which may still be a decimal point.
func pendingDecimal(buf string, dot, end int) bool {
	if end != dot+1 || buf[dot] != '.' || dot == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(buf[:dot])
	return unicode.IsDigit(r)
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}
