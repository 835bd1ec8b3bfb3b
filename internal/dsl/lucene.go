package dsl

import "fmt"

// validateLuceneQuery checks that raw conforms to the lucene_query grammar
// from spec.md §4.1:
//
//	lucene_query  := lucene_clause+
//	lucene_clause := [("+"|"-")] [IDENTIFIER ":"] (LUCENE_TERM | "(" lucene_query ")")
//	LUCENE_TERM   := /[^():+\-;]+/
//
// It does not build a tree: the full-text backend (C4) receives raw's text
// verbatim, so all validation needs to do is reject malformed input with
// enough of a shape-check to satisfy the ParseError contract (e.g. kw()'s
// empty body, or an unterminated nested group).
func validateLuceneQuery(raw string) error {
	p := &luceneValidator{runes: []rune(raw)}
	clauses, err := p.parseClauses(false)
	if err != nil {
		return err
	}
	if clauses == 0 {
		return fmt.Errorf("empty keyword query")
	}
	p.skipSpace()
	if p.pos < len(p.runes) {
		return fmt.Errorf("unexpected character %q in keyword query", p.runes[p.pos])
	}
	return nil
}

type luceneValidator struct {
	runes []rune
	pos   int
}

func (p *luceneValidator) skipSpace() {
	for p.pos < len(p.runes) && isSpace(p.runes[p.pos]) {
		p.pos++
	}
}

// parseClauses consumes lucene_clause+ until it hits a top-level ')' (when
// nested) or EOF (at the top), returning the number of clauses consumed.
func (p *luceneValidator) parseClauses(nested bool) (int, error) {
	count := 0
	for {
		p.skipSpace()
		if p.pos >= len(p.runes) {
			if nested {
				return count, fmt.Errorf("unclosed nested keyword group")
			}
			return count, nil
		}
		if p.runes[p.pos] == ')' {
			if !nested {
				return count, fmt.Errorf("unexpected ')' in keyword query")
			}
			return count, nil
		}
		if err := p.parseClause(); err != nil {
			return count, err
		}
		count++
	}
}

func (p *luceneValidator) parseClause() error {
	if p.pos < len(p.runes) && (p.runes[p.pos] == '+' || p.runes[p.pos] == '-') {
		p.pos++
	}

	// Optional "IDENTIFIER:" field prefix.
	identStart := p.pos
	for p.pos < len(p.runes) && isIdentRune(p.runes[p.pos]) {
		p.pos++
	}
	if p.pos < len(p.runes) && p.runes[p.pos] == ':' && p.pos > identStart {
		p.pos++
	} else {
		p.pos = identStart
	}

	if p.pos < len(p.runes) && p.runes[p.pos] == '(' {
		p.pos++
		n, err := p.parseClauses(true)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("empty nested keyword group")
		}
		if p.pos >= len(p.runes) || p.runes[p.pos] != ')' {
			return fmt.Errorf("unclosed nested keyword group")
		}
		p.pos++
		return nil
	}

	termStart := p.pos
	for p.pos < len(p.runes) && isLuceneTermRune(p.runes[p.pos]) {
		p.pos++
	}
	if p.pos == termStart {
		return fmt.Errorf("expected a keyword term")
	}
	return nil
}

func isIdentRune(r rune) bool {
	return r == '_' || r == ' ' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isLuceneTermRune(r rune) bool {
	switch r {
	case '(', ')', ':', '+', '-', ';':
		return false
	default:
		return !isSpace(r)
	}
}
