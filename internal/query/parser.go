package query

import (
	"fmt"

	"github.com/feedsearch/feedsearch/internal/tokenizer"
)

// SyntaxError describes where and why a query failed to parse. The searcher
// treats it as a zero-result condition rather than a server error.
type SyntaxError struct {
	Pos   int
	Input string
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d in %q: %s", e.Pos, e.Input, e.Msg)
}

// Parse parses a query string into an AST. Grammar, loosest binding first:
//
//	expr    = orExpr
//	orExpr  = andExpr { OR andExpr }
//	andExpr = notExpr { AND notExpr }
//	notExpr = NOT notExpr | primary
//	primary = "(" expr ")" | phrase | proximity | term
//
// Keywords are case-insensitive. Errors are always *SyntaxError.
func Parse(input string) (Node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &SyntaxError{Pos: 0, Input: input, Msg: "empty query"}
	}
	p := &parser{input: input, tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.peek(); ok {
		return nil, p.errorf(tok.pos, "unexpected %s", tok.kind)
	}
	return node, nil
}

type parser struct {
	input  string
	tokens []token
	next   int
}

func (p *parser) peek() (token, bool) {
	if p.next >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.next], true
}

func (p *parser) advance() token {
	tok := p.tokens[p.next]
	p.next++
	return tok
}

func (p *parser) errorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: pos, Input: p.input, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokenOr {
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokenAnd {
			return left, nil
		}
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
}

func (p *parser) parseNot() (Node, error) {
	tok, ok := p.peek()
	if ok && tok.kind == tokenNot {
		p.advance()
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, p.errorf(len(p.input), "unexpected end of query")
	}
	switch tok.kind {
	case tokenTerm:
		p.advance()
		if len(tokenizer.Tokenize(tok.text)) == 0 {
			return nil, p.errorf(tok.pos, "invalid term %q", tok.text)
		}
		return &Term{Text: tok.text}, nil
	case tokenPhrase:
		p.advance()
		return &Phrase{Text: tok.text}, nil
	case tokenProximity:
		p.advance()
		if len(tokenizer.Tokenize(tok.term1)) == 0 || len(tokenizer.Tokenize(tok.term2)) == 0 {
			return nil, p.errorf(tok.pos, "invalid terms in proximity query %q", tok.text)
		}
		return &Proximity{Dist: tok.dist, Term1: tok.term1, Term2: tok.term2}, nil
	case tokenLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokenRParen {
			return nil, p.errorf(tok.pos, "missing closing parenthesis")
		}
		p.advance()
		return inner, nil
	default:
		return nil, p.errorf(tok.pos, "unexpected %s", tok.kind)
	}
}
