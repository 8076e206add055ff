package postgres

import (
	"strings"
	"unicode"
)

// Verb selects the execution path of a statement.
type Verb int

const (
	// VerbWrite runs in a transaction and reports rows affected.
	VerbWrite Verb = iota
	// VerbQuery streams rows.
	VerbQuery
	// VerbCall maps the returned row to out parameters.
	VerbCall
)

func (v Verb) String() string {
	switch v {
	case VerbQuery:
		return "query"
	case VerbCall:
		return "call"
	}
	return "write"
}

var queryVerbs = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"SHOW":    true,
	"VALUES":  true,
	"TABLE":   true,
	"EXPLAIN": true,
}

// Classify picks the path for sql from its first keyword, skipping leading
// comments and parentheses.
func Classify(sql string) Verb {
	w := firstWord(sql)
	switch {
	case w == "CALL":
		return VerbCall
	case queryVerbs[w]:
		return VerbQuery
	}
	return VerbWrite
}

func firstWord(sql string) string {
	s := stripLeading(sql)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

func stripLeading(s string) string {
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			return s
		}
	}
}

// HasReturning reports whether a write statement has a RETURNING clause
// outside string literals and quoted identifiers.
func HasReturning(sql string) bool {
	const kw = "RETURNING"
	up := strings.ToUpper(sql)
	var quote byte
	for i := 0; i < len(up); i++ {
		c := up[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if !strings.HasPrefix(up[i:], kw) {
			continue
		}
		if i > 0 && isWordByte(up[i-1]) {
			continue
		}
		if end := i + len(kw); end < len(up) && isWordByte(up[end]) {
			continue
		}
		return true
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
