package components

import (
	"fmt"
	"strings"
)

// scanner helpers work on whitespace-collapsed SQL and only look at text
// outside quotes and parentheses, so subqueries and literals never end a clause.

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// keywordAt reports whether kw occurs at s[i] as a whole word, ignoring case.
func keywordAt(s string, i int, kw string) bool {
	if i+len(kw) > len(s) || !strings.EqualFold(s[i:i+len(kw)], kw) {
		return false
	}
	if i > 0 && isWordByte(s[i-1]) {
		return false
	}
	if end := i + len(kw); end < len(s) && isWordByte(s[end]) {
		return false
	}
	return true
}

// skipQuoted returns the index just past the quoted run starting at s[i].
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] == q {
			// doubled quote is an escaped quote
			if j+1 < len(s) && s[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

func isQuote(b byte) bool {
	return b == '\'' || b == '"' || b == '`'
}

// mapUnquoted applies fn to each run of s that lies outside quotes and
// leaves quoted runs untouched.
func mapUnquoted(s string, fn func(string) string) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); {
		if !isQuote(s[i]) {
			i++
			continue
		}
		b.WriteString(fn(s[last:i]))
		end := skipQuoted(s, i)
		b.WriteString(s[i:end])
		i, last = end, end
	}
	b.WriteString(fn(s[last:]))
	return b.String()
}

// indexTopLevel returns the position and text of the first keyword from kws
// found at depth zero at or after from, or -1.
func indexTopLevel(s string, from int, kws ...string) (int, string) {
	depth := 0
	for i := from; i < len(s); {
		c := s[i]
		switch {
		case isQuote(c):
			i = skipQuoted(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			for _, kw := range kws {
				if keywordAt(s, i, kw) {
					return i, kw
				}
			}
		}
		i++
	}
	return -1, ""
}

// clauseBody returns the text between the start keyword and the first
// terminator, both searched at depth zero.
func clauseBody(s, start string, terminators ...string) (string, bool) {
	i, _ := indexTopLevel(s, 0, start)
	if i < 0 {
		return "", false
	}
	from := i + len(start)
	end, _ := indexTopLevel(s, from, terminators...)
	if end < 0 {
		end = len(s)
	}
	return strings.TrimSpace(s[from:end]), true
}

// splitTopLevel splits s on sep at depth zero. Unbalanced parentheses are an error.
func splitTopLevel(s string, sep byte) ([]string, error) {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isQuote(c):
			i = skipQuoted(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unmatched ')' at offset %d", i)
			}
		case c == sep && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
		i++
	}
	if depth != 0 {
		return nil, fmt.Errorf("%d unclosed '('", depth)
	}
	return append(parts, s[last:]), nil
}

// splitTopLevelWords splits s on whole-word separators at depth zero,
// dropping the separators themselves.
func splitTopLevelWords(s string, words ...string) []string {
	var parts []string
	last := 0
	for {
		i, kw := indexTopLevel(s, last, words...)
		if i < 0 {
			break
		}
		parts = append(parts, s[last:i])
		last = i + len(kw)
	}
	return append(parts, s[last:])
}

// matchParen returns the index of the ')' closing the '(' at s[open], or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); {
		c := s[i]
		switch {
		case isQuote(c):
			i = skipQuoted(s, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

func trimAll(parts []string) Fragments {
	out := make(Fragments, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
