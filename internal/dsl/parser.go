package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fainderql/queryengine/internal/qerrors"
)

// Parser is a single-lookahead recursive-descent parser over the grammar
// in spec.md §4.1. It holds exactly one buffered token (cur): every method
// that needs to drop into raw capture (CaptureBalanced/CaptureUntil) does
// so the instant the opening '(' token has been consumed, before any
// further lookahead would eagerly tokenize the argument body.
type Parser struct {
	lex *Lexer
	src string
	cur Token
}

// NewParser returns a Parser ready to parse text.
func NewParser(text string) *Parser {
	p := &Parser{lex: NewLexer(text), src: text}
	p.advance()
	return p
}

// Parse tokenizes and parses text into a document-scope tree, or returns a
// *qerrors.QueryError of kind KindParse.
func Parse(text string) (DocNode, error) {
	p := NewParser(text)
	tree, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != EOF {
		return nil, p.errorf("unexpected trailing input %q", p.cur.Literal)
	}
	return tree, nil
}

func (p *Parser) advance() {
	p.cur = p.lex.NextToken()
}

func boolOpOf(k Kind) (BoolOp, bool) {
	switch k {
	case AND:
		return OpAnd, true
	case OR:
		return OpOr, true
	case XOR:
		return OpXor, true
	default:
		return 0, false
	}
}

// query := expr (BOOL_OP query)?
func (p *Parser) parseQuery() (DocNode, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if op, ok := boolOpOf(p.cur.Kind); ok {
		p.advance()
		right, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		return &QueryNode{Left: left, Op: op, Right: right}, nil
	}
	return left, nil
}

// expr := not_expr | term | "(" query ")"
func (p *Parser) parseExpr() (DocNode, error) {
	switch p.cur.Kind {
	case NOT:
		return p.parseNotExpr()
	case LPAREN:
		p.advance()
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &ExprNode{Child: q}, nil
	case KW, COL:
		return p.parseTerm()
	default:
		return nil, p.errorf("expected a term, NOT, or '(' but got %s", p.describeCur())
	}
}

// not_expr := "NOT" term | "NOT" "(" query ")"
func (p *Parser) parseNotExpr() (DocNode, error) {
	p.advance() // consume NOT
	if p.cur.Kind == LPAREN {
		p.advance()
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &NotExprNode{Child: q}, nil
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return &NotExprNode{Child: term}, nil
}

// term := KW_OP "(" lucene_query ")" | COL_OP "(" column_query ")"
func (p *Parser) parseTerm() (DocNode, error) {
	switch p.cur.Kind {
	case KW:
		kwPos := p.cur
		p.advance() // fetch token after KW_OP, expecting '('
		if p.cur.Kind != LPAREN {
			return nil, p.errorf("expected '(' after keyword operator")
		}
		raw, closed := p.lex.CaptureBalanced()
		if !closed {
			return nil, p.errorfAt(kwPos, "unclosed keyword group")
		}
		if err := validateLuceneQuery(raw); err != nil {
			return nil, p.errorfAt(kwPos, "invalid keyword query: %v", err)
		}
		p.advance()
		return &TermNode{Keyword: &KeywordTerm{Lucene: raw}}, nil

	case COL:
		p.advance() // fetch token after COL_OP, expecting '('
		if p.cur.Kind != LPAREN {
			return nil, p.errorf("expected '(' after column operator")
		}
		p.advance() // enter column_query tokenization
		colq, err := p.parseColumnQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &TermNode{Column: colq}, nil

	default:
		return nil, p.errorf("expected KW_OP or COL_OP but got %s", p.describeCur())
	}
}

// column_query := col_expr (BOOL_OP column_query)?
func (p *Parser) parseColumnQuery() (ColNode, error) {
	left, err := p.parseColExpr()
	if err != nil {
		return nil, err
	}
	if op, ok := boolOpOf(p.cur.Kind); ok {
		p.advance()
		right, err := p.parseColumnQuery()
		if err != nil {
			return nil, err
		}
		return &ColumnQueryNode{Left: left, Op: op, Right: right}, nil
	}
	return left, nil
}

// col_expr := not_col_expr | columnterm | "(" column_query ")"
func (p *Parser) parseColExpr() (ColNode, error) {
	switch p.cur.Kind {
	case NOT:
		return p.parseNotColExpr()
	case LPAREN:
		p.advance()
		q, err := p.parseColumnQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &ColExprNode{Child: q}, nil
	case NAME, PCT:
		return p.parseColumnTerm()
	default:
		return nil, p.errorf("expected a column term, NOT, or '(' but got %s", p.describeCur())
	}
}

// not_col_expr := "NOT" columnterm | "NOT" "(" column_query ")"
func (p *Parser) parseNotColExpr() (ColNode, error) {
	p.advance() // consume NOT
	if p.cur.Kind == LPAREN {
		p.advance()
		q, err := p.parseColumnQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &NotColExprNode{Child: q}, nil
	}
	term, err := p.parseColumnTerm()
	if err != nil {
		return nil, err
	}
	return &NotColExprNode{Child: term}, nil
}

// columnterm := NAME_OP "(" IDENTIFIER ";" INT ")"
//             | PCT_OP  "(" FLOAT ";" CMP ";" SIGNED_NUMBER ")"
func (p *Parser) parseColumnTerm() (ColNode, error) {
	switch p.cur.Kind {
	case NAME:
		return p.parseNameTerm()
	case PCT:
		return p.parsePercentileTerm()
	default:
		return nil, p.errorf("expected NAME_OP or PCT_OP but got %s", p.describeCur())
	}
}

func (p *Parser) parseNameTerm() (ColNode, error) {
	opPos := p.cur
	p.advance() // fetch token after NAME_OP, expecting '('
	if p.cur.Kind != LPAREN {
		return nil, p.errorf("expected '(' after name operator")
	}

	ident, stop := p.lex.CaptureUntil(';')
	if stop != ';' {
		return nil, p.errorfAt(opPos, "name() requires \"identifier;k\"")
	}
	p.advance() // consumes ';'
	if p.cur.Kind != SEMI {
		return nil, p.errorfAt(opPos, "expected ';' in name()")
	}

	kText, stop := p.lex.CaptureUntil()
	if stop != ')' {
		return nil, p.errorfAt(opPos, "name() missing closing ')'")
	}
	k, err := strconv.Atoi(kText)
	if err != nil || k < 0 {
		return nil, p.errorfAt(opPos, "name()'s k must be a non-negative integer, got %q", kText)
	}
	p.advance() // consumes ')'
	if p.cur.Kind != RPAREN {
		return nil, p.errorfAt(opPos, "expected ')' to close name()")
	}
	p.advance()

	if strings.TrimSpace(ident) == "" {
		return nil, p.errorfAt(opPos, "name() requires a non-empty identifier")
	}

	return &ColumnTermNode{Name: &NameTerm{Text: ident, K: k}}, nil
}

func (p *Parser) parsePercentileTerm() (ColNode, error) {
	opPos := p.cur
	p.advance() // fetch token after PCT_OP, expecting '('
	if p.cur.Kind != LPAREN {
		return nil, p.errorf("expected '(' after percentile operator")
	}

	pctlText, stop := p.lex.CaptureUntil(';')
	if stop != ';' {
		return nil, p.errorfAt(opPos, "percentile() requires \"pctl;cmp;ref\"")
	}
	pctl, err := strconv.ParseFloat(pctlText, 64)
	if err != nil {
		return nil, p.errorfAt(opPos, "invalid percentile literal %q", pctlText)
	}
	if pctl <= 0 || pctl > 1 {
		return nil, p.errorfAt(opPos, "percentile must satisfy 0 < pctl <= 1, got %g", pctl)
	}
	p.advance() // consumes ';'
	if p.cur.Kind != SEMI {
		return nil, p.errorfAt(opPos, "expected ';' after percentile in percentile()")
	}

	p.advance() // now tokenize CMP normally (ge/gt/le/lt are plain letters)
	if p.cur.Kind != CMP {
		return nil, p.errorfAt(opPos, "expected a comparison operator (ge/gt/le/lt), got %s", p.describeCur())
	}
	cmp, ok := cmpFromLiteral(p.cur.Literal)
	if !ok {
		return nil, p.errorfAt(opPos, "unrecognized comparison operator %q", p.cur.Literal)
	}
	p.advance() // fetch next, expecting ';'
	if p.cur.Kind != SEMI {
		return nil, p.errorfAt(opPos, "expected ';' after comparison operator in percentile()")
	}

	refText, stop := p.lex.CaptureUntil()
	if stop != ')' {
		return nil, p.errorfAt(opPos, "percentile() missing closing ')'")
	}
	ref, err := strconv.ParseFloat(refText, 64)
	if err != nil {
		return nil, p.errorfAt(opPos, "invalid reference number %q", refText)
	}
	p.advance() // consumes ')'
	if p.cur.Kind != RPAREN {
		return nil, p.errorfAt(opPos, "expected ')' to close percentile()")
	}
	p.advance()

	return &ColumnTermNode{Percentile: &PercentileTerm{Pctl: pctl, Cmp: cmp, Ref: ref}}, nil
}

// expect checks the current token's kind, advances past it, and fails
// otherwise. Never call this where the next token must remain
// un-tokenized (i.e. right before a raw capture) — use a bare kind check
// instead, since expect's advance would eagerly tokenize raw content.
func (p *Parser) expect(kind Kind) error {
	if p.cur.Kind != kind {
		return p.errorf("expected %s but got %s", kind, p.describeCur())
	}
	p.advance()
	return nil
}

func (p *Parser) describeCur() string {
	if p.cur.Kind == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", p.cur.Literal)
}

func (p *Parser) errorf(format string, args ...any) error {
	return p.errorfAt(p.cur, format, args...)
}

func (p *Parser) errorfAt(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return qerrors.Parse(msg, tok.Line, tok.Column, p.contextLine(tok.Line), nil)
}

func (p *Parser) contextLine(line int) string {
	lines := strings.Split(p.src, "\n")
	if line >= 1 && line <= len(lines) {
		return strings.TrimSpace(lines[line-1])
	}
	return ""
}
