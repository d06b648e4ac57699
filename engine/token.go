package engine

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokKeyword // and or not if else
	tokOp      // + - * / // % ** == != < <= > >=
	tokPunct   // ( ) [ ] , . :
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "if": true, "else": true,
}

// scan tokenizes the whole source up front. The scanner is byte-wise and
// position-tracking; formula text is expected to be ASCII apart from
// string literal contents.
func scan(source string) ([]token, error) {
	var toks []token
	pos := 0

	for pos < len(source) {
		ch := source[pos]

		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			pos++
			continue
		}

		switch {
		case ch >= '0' && ch <= '9', ch == '.' && pos+1 < len(source) && isDigit(source[pos+1]):
			start := pos
			for pos < len(source) && (isDigit(source[pos]) || source[pos] == '.') {
				pos++
			}
			text := source[start:pos]
			if strings.Count(text, ".") > 1 {
				return nil, &SyntaxError{Pos: start, Message: fmt.Sprintf("malformed number %q", text)}
			}
			toks = append(toks, token{tokNumber, text, start})

		case isIdentStart(ch):
			start := pos
			for pos < len(source) && isIdentChar(source[pos]) {
				pos++
			}
			text := source[start:pos]
			kind := tokIdent
			if keywords[text] {
				kind = tokKeyword
			}
			toks = append(toks, token{kind, text, start})

		case ch == '"' || ch == '\'':
			quote := ch
			start := pos
			pos++
			var sb strings.Builder
			for pos < len(source) && source[pos] != quote {
				if source[pos] == '\\' && pos+1 < len(source) {
					pos++
				}
				sb.WriteByte(source[pos])
				pos++
			}
			if pos >= len(source) {
				return nil, &SyntaxError{Pos: start, Message: "unclosed string literal"}
			}
			pos++ // closing quote
			toks = append(toks, token{tokString, sb.String(), start})

		case ch == '*' && pos+1 < len(source) && source[pos+1] == '*':
			toks = append(toks, token{tokOp, "**", pos})
			pos += 2
		case ch == '/' && pos+1 < len(source) && source[pos+1] == '/':
			toks = append(toks, token{tokOp, "//", pos})
			pos += 2
		case ch == '=' && pos+1 < len(source) && source[pos+1] == '=':
			toks = append(toks, token{tokOp, "==", pos})
			pos += 2
		case ch == '!' && pos+1 < len(source) && source[pos+1] == '=':
			toks = append(toks, token{tokOp, "!=", pos})
			pos += 2
		case ch == '<' && pos+1 < len(source) && source[pos+1] == '=':
			toks = append(toks, token{tokOp, "<=", pos})
			pos += 2
		case ch == '>' && pos+1 < len(source) && source[pos+1] == '=':
			toks = append(toks, token{tokOp, ">=", pos})
			pos += 2
		case ch == '+' || ch == '-' || ch == '*' || ch == '/' || ch == '%' || ch == '<' || ch == '>':
			toks = append(toks, token{tokOp, string(ch), pos})
			pos++
		case ch == '(' || ch == ')' || ch == '[' || ch == ']' || ch == ',' || ch == '.' || ch == ':':
			toks = append(toks, token{tokPunct, string(ch), pos})
			pos++

		default:
			return nil, &SyntaxError{Pos: pos, Message: fmt.Sprintf("unexpected character %q", string(ch))}
		}
	}

	toks = append(toks, token{tokEOF, "", len(source)})
	return toks, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
