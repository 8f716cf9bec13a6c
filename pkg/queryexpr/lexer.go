package queryexpr

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokComma
	tokLParen
	tokRParen
	tokStar
)

type token struct {
	kind tokenKind
	text string
}

func (t token) isKeyword(word string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (t token) intValue() (int, error) {
	return strconv.Atoi(t.text)
}

func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ","})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++
		case r == '*':
			tokens = append(tokens, token{kind: tokStar, text: "*"})
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			var sb strings.Builder
			for j < len(runes) && runes[j] != quote {
				sb.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, syntaxErrorf("unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String()})
			i = j + 1
		case r == '=':
			tokens = append(tokens, token{kind: tokOp, text: "="})
			i++
		case r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: "!="})
				i += 2
			} else {
				return nil, syntaxErrorf("unexpected character %q", string(r))
			}
		case r == '>' || r == '<':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, text: string(r) + "="})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokOp, text: string(r)})
				i++
			}
		case r == '-' || unicode.IsDigit(r):
			j := i
			if runes[j] == '-' {
				j++
			}
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			text := string(runes[i:j])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, syntaxErrorf("invalid number %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[i:j])})
			i = j
		default:
			return nil, syntaxErrorf("unexpected character %q", string(r))
		}
	}
	return tokens, nil
}
