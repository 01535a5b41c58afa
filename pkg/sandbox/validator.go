package sandbox

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord   tokenKind = iota // bare keyword or identifier
	tokQuoted                  // "x", `x` or [x]
	tokString                  // 'x'
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifiers unescaped, keywords as written
}

// Keywords that reach outside the private database or reconfigure the engine.
var forbiddenKeywords = map[string]string{
	"ATTACH": "ATTACH is not allowed",
	"DETACH": "DETACH is not allowed",
	"VACUUM": "VACUUM is not allowed",
	"PRAGMA": "PRAGMA is not allowed",
}

// Validate statically checks a program before it is executed. The returned
// error wraps ErrRejected.
func Validate(source string, maxSize int) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("%w: empty program", ErrRejected)
	}
	if maxSize > 0 && len(source) > maxSize {
		return fmt.Errorf("%w: program is %d bytes, limit is %d", ErrRejected, len(source), maxSize)
	}

	tokens, err := lex(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	for i, t := range tokens {
		if t.kind == tokWord {
			if reason, bad := forbiddenKeywords[strings.ToUpper(t.text)]; bad {
				return fmt.Errorf("%w: %s", ErrRejected, reason)
			}
		}
		if isIdent(t) && strings.EqualFold(t.text, "load_extension") && punctAt(tokens, i+1, "(") {
			return fmt.Errorf("%w: load_extension is not allowed", ErrRejected)
		}
		if name, ok := writeTarget(tokens, i); ok && strings.HasPrefix(strings.ToLower(name), "sqlite_") {
			return fmt.Errorf("%w: writing to internal sqlite_ tables is not allowed", ErrRejected)
		}
	}
	return nil
}

// lex splits source the way SQLite's tokenizer does for everything that
// matters here: literals, quoted identifiers and comments are consumed in a
// single left-to-right pass, so none of them can hide or fake another.
func lex(src string) ([]token, error) {
	var out []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			i++
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				return out, nil
			}
			i += end + 1
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				// SQLite treats an unterminated block comment as running to the end
				return out, nil
			}
			i += end + 4
		case c == '\'' || c == '"' || c == '`':
			text, n, err := quoted(src[i:], c, c)
			if err != nil {
				return nil, err
			}
			kind := tokQuoted
			if c == '\'' {
				kind = tokString
			}
			out = append(out, token{kind: kind, text: text})
			i += n
		case c == '[':
			end := strings.IndexByte(src[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated [identifier")
			}
			out = append(out, token{kind: tokQuoted, text: src[i+1 : i+end]})
			i += end + 1
		case isWordStart(src, i):
			j := i
			for j < len(src) && isWordPart(src, j) {
				_, size := utf8.DecodeRuneInString(src[j:])
				j += size
			}
			out = append(out, token{kind: tokWord, text: src[i:j]})
			i = j
		default:
			out = append(out, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return out, nil
}

// quoted reads a literal opened by open at s[0]; a doubled close is an escape.
func quoted(s string, open, close byte) (string, int, error) {
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != close {
			sb.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == close {
			sb.WriteByte(close)
			i++
			continue
		}
		return sb.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated %c literal", open)
}

func isWordStart(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isIdent(t token) bool {
	return t.kind == tokWord || t.kind == tokQuoted
}

func wordAt(tokens []token, i int, words ...string) bool {
	if i >= len(tokens) || tokens[i].kind != tokWord {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(tokens[i].text, w) {
			return true
		}
	}
	return false
}

func punctAt(tokens []token, i int, p string) bool {
	return i < len(tokens) && tokens[i].kind == tokPunct && tokens[i].text == p
}

// objectName reads [schema .] name starting at i.
func objectName(tokens []token, i int) (string, bool) {
	if i >= len(tokens) || !isIdent(tokens[i]) {
		return "", false
	}
	if punctAt(tokens, i+1, ".") && i+2 < len(tokens) && isIdent(tokens[i+2]) {
		return tokens[i+2].text, true
	}
	return tokens[i].text, true
}

// writeTarget returns the table a statement starting at tokens[i] writes to.
func writeTarget(tokens []token, i int) (string, bool) {
	switch {
	case wordAt(tokens, i, "INSERT", "REPLACE"):
		j := i + 1
		if wordAt(tokens, j, "OR") {
			j += 2
		}
		if !wordAt(tokens, j, "INTO") {
			return "", false
		}
		return objectName(tokens, j+1)
	case wordAt(tokens, i, "UPDATE"):
		j := i + 1
		if wordAt(tokens, j, "OR") {
			j += 2
		}
		return objectName(tokens, j)
	case wordAt(tokens, i, "DELETE") && wordAt(tokens, i+1, "FROM"):
		return objectName(tokens, i+2)
	case wordAt(tokens, i, "DROP") && wordAt(tokens, i+1, "TABLE", "VIEW", "INDEX", "TRIGGER"):
		j := i + 2
		if wordAt(tokens, j, "IF") && wordAt(tokens, j+1, "EXISTS") {
			j += 2
		}
		return objectName(tokens, j)
	case wordAt(tokens, i, "ALTER") && wordAt(tokens, i+1, "TABLE"):
		return objectName(tokens, i+2)
	}
	return "", false
}
