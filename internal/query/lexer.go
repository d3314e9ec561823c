// Package query parses the boolean query language into an AST and evaluates
// it against an index snapshot. The grammar supports AND, OR, prefix NOT,
// parentheses, quoted phrases, and proximity windows of the form
// #<dist>(term1,term2). Bare words are term matches.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenTerm tokenKind = iota
	tokenPhrase
	tokenProximity
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokenTerm:
		return "term"
	case tokenPhrase:
		return "phrase"
	case tokenProximity:
		return "proximity"
	case tokenAnd:
		return "AND"
	case tokenOr:
		return "OR"
	case tokenNot:
		return "NOT"
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	}
	return "?"
}

type token struct {
	kind tokenKind
	pos  int    // byte offset in the input
	text string // term text, phrase contents, or raw lexeme

	// proximity fields
	dist  int
	term1 string
	term2 string
}

// Patterns are anchored and tried in order. Proximity must come before the
// bare-term pattern or "#2(a,b)" would lex as a term; keywords need the word
// boundary so a term like "android" is not split into AND + roid.
var (
	proximityPattern = regexp.MustCompile(`^#(\d+)\(([^,()]+),([^,()]+)\)`)
	phrasePattern    = regexp.MustCompile(`^"([^"]*)"`)
	keywordPattern   = regexp.MustCompile(`(?i)^(AND|OR|NOT)\b`)
	termPattern      = regexp.MustCompile(`^[^\s()"]+`)
)

// lex splits the input into tokens, reporting the byte position of anything
// it cannot recognise.
func lex(input string) ([]token, error) {
	var tokens []token
	pos := 0
	for pos < len(input) {
		rest := input[pos:]

		if ws := len(rest) - len(strings.TrimLeft(rest, " \t\r\n")); ws > 0 {
			pos += ws
			continue
		}

		if m := proximityPattern.FindStringSubmatch(rest); m != nil {
			dist, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, &SyntaxError{Pos: pos, Input: input, Msg: fmt.Sprintf("invalid proximity distance %q", m[1])}
			}
			tokens = append(tokens, token{
				kind:  tokenProximity,
				pos:   pos,
				text:  m[0],
				dist:  dist,
				term1: strings.TrimSpace(m[2]),
				term2: strings.TrimSpace(m[3]),
			})
			pos += len(m[0])
			continue
		}

		if m := phrasePattern.FindStringSubmatch(rest); m != nil {
			tokens = append(tokens, token{kind: tokenPhrase, pos: pos, text: m[1]})
			pos += len(m[0])
			continue
		}

		if m := keywordPattern.FindStringSubmatch(rest); m != nil {
			kind := tokenAnd
			switch strings.ToUpper(m[1]) {
			case "OR":
				kind = tokenOr
			case "NOT":
				kind = tokenNot
			}
			tokens = append(tokens, token{kind: kind, pos: pos, text: m[0]})
			pos += len(m[0])
			continue
		}

		switch rest[0] {
		case '(':
			tokens = append(tokens, token{kind: tokenLParen, pos: pos, text: "("})
			pos++
			continue
		case ')':
			tokens = append(tokens, token{kind: tokenRParen, pos: pos, text: ")"})
			pos++
			continue
		}

		if m := termPattern.FindString(rest); m != "" {
			tokens = append(tokens, token{kind: tokenTerm, pos: pos, text: m})
			pos += len(m)
			continue
		}

		return nil, &SyntaxError{Pos: pos, Input: input, Msg: fmt.Sprintf("unexpected character %q", rest[0])}
	}
	return tokens, nil
}
