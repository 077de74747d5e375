package condition

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokPath
	tokString
	tokInt
	tokFloat
	tokBool
	tokNull
	tokWord // bareword literal (treated as string)
	tokOp   // == != >= <= > < ~ !~
	tokAnd
	tokOr
	tokNot
	tokIn
	tokIsNull
	tokRegex
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	n    int
	b    bool
	pos  int
}

// isPathChar reports whether c may appear in a $path operand, including
// array index suffixes like [0] and [-1].
func isPathChar(c byte) bool {
	return c == '.' || c == '_' || c == '[' || c == ']' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isWordChar covers barewords such as null, none, or date fragments like
// 02.12.2012.
func isWordChar(c byte) bool {
	return c == '.' || c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// lex tokenizes a condition expression.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i++
		case c == '[':
			tokens = append(tokens, token{kind: tokLBracket, pos: i})
			i++
		case c == ']':
			tokens = append(tokens, token{kind: tokRBracket, pos: i})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokComma, pos: i})
			i++
		case c == '$':
			start := i + 1
			j := start
			for j < len(src) && isPathChar(src[j]) {
				j++
			}
			if j == start {
				return nil, fmt.Errorf("empty path at offset %d", i)
			}
			tokens = append(tokens, token{kind: tokPath, text: src[start:j], pos: i})
			i = j
		case c == '\'' || c == '"':
			lit, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: lit, pos: i})
			i = next
		case c == '=' || c == '!' || c == '>' || c == '<' || c == '~':
			op, next, err := lexOperator(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i = next
		default:
			word, next := lexWord(src, i)
			if word == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
			tokens = append(tokens, classifyWord(word, i))
			i = next
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		if c == '\\' && i+1 < len(src) && (src[i+1] == '\'' || src[i+1] == '"') {
			b.WriteByte(src[i+1])
			i += 2
			continue
		}
		if c == quote {
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, fmt.Errorf("unterminated string at offset %d", start)
}

func lexOperator(src string, i int) (string, int, error) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case "==", "!=", ">=", "<=", "!~":
		return two, i + 2, nil
	}
	switch src[i] {
	case '>', '<', '~':
		return string(src[i]), i + 1, nil
	}
	return "", 0, fmt.Errorf("invalid operator at offset %d", i)
}

func lexWord(src string, start int) (string, int) {
	j := start
	for j < len(src) && isWordChar(src[j]) {
		j++
	}
	return src[start:j], j
}

// classifyWord resolves keywords, numeric literals, boolean/null literals,
// and plain bareword strings.
func classifyWord(word string, pos int) token {
	switch strings.ToLower(word) {
	case "and":
		return token{kind: tokAnd, text: word, pos: pos}
	case "or":
		return token{kind: tokOr, text: word, pos: pos}
	case "not":
		return token{kind: tokNot, text: word, pos: pos}
	case "in":
		return token{kind: tokIn, text: word, pos: pos}
	case "is_null":
		return token{kind: tokIsNull, text: word, pos: pos}
	case "regex":
		return token{kind: tokRegex, text: word, pos: pos}
	case "true":
		return token{kind: tokBool, b: true, text: word, pos: pos}
	case "false":
		return token{kind: tokBool, b: false, text: word, pos: pos}
	case "none", "null":
		return token{kind: tokNull, text: word, pos: pos}
	}
	if n, err := strconv.Atoi(word); err == nil {
		return token{kind: tokInt, n: n, text: word, pos: pos}
	}
	if f, err := strconv.ParseFloat(word, 64); err == nil {
		return token{kind: tokFloat, num: f, text: word, pos: pos}
	}
	// Bareword literal: dates like 02.12.2012 land here.
	return token{kind: tokWord, text: word, pos: pos}
}
