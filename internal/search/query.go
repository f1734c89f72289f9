package search

import (
	"regexp"
	"strings"
)

// Term is one logical search term: a bare word or a quoted phrase,
// optionally negated.
type Term struct {
	Text   string
	Negate bool
}

var termPattern = regexp.MustCompile(`-"([^"]+)"|"([^"]+)"|(-?\S+)`)

// ParseQuery splits free-form user input into terms.
//
// Quoted runs keep their inner whitespace. Everything else splits on
// whitespace only, so punctuation stays inside the term. A leading '-'
// negates a term; a lone '-' is a literal.
func ParseQuery(text string) []Term {
	var terms []Term
	for _, m := range termPattern.FindAllStringSubmatch(text, -1) {
		negQuoted, quoted, bare := m[1], m[2], m[3]
		switch {
		case negQuoted != "":
			terms = append(terms, Term{Text: negQuoted, Negate: true})
		case quoted != "":
			terms = append(terms, Term{Text: quoted})
		case bare != "":
			if strings.HasPrefix(bare, "-") && len(bare) > 1 {
				terms = append(terms, Term{Text: bare[1:], Negate: true})
			} else {
				terms = append(terms, Term{Text: bare})
			}
		}
	}
	return terms
}

// CompileQuery turns user input into an FTS5 MATCH expression in which
// every term is a quoted phrase, so no input can reach FTS5 operator or
// column syntax. Terms are ANDed; negated terms become NOT. Input with no
// terms compiles to the empty phrase, which matches nothing. The engine
// runs the same terms through matchExpression before MATCH.
//
//	hello world   ->  "hello" AND "world"
//	"a  b" -c     ->  "a  b" AND NOT "c"
func CompileQuery(text string) string {
	terms := ParseQuery(text)
	if len(terms) == 0 {
		return `""`
	}

	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		phrase := quote(t.Text)
		if t.Negate {
			phrase = "NOT " + phrase
		}
		parts = append(parts, phrase)
	}
	return strings.Join(parts, " AND ")
}

func quote(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// matchExpression lowers terms to the form FTS5 accepts. NOT is binary in
// FTS5, so negations are subtracted from the conjunction of the positive
// terms:
//
//	apple -banana      ->  "apple" NOT "banana"
//	a b -c -d          ->  ("a" AND "b") NOT "c" NOT "d"
//
// ok is false when no positive term remains; such a query matches nothing.
func matchExpression(terms []Term) (expr string, ok bool) {
	var pos, neg []string
	for _, t := range terms {
		if t.Negate {
			neg = append(neg, quote(t.Text))
		} else {
			pos = append(pos, quote(t.Text))
		}
	}
	if len(pos) == 0 {
		return "", false
	}

	expr = strings.Join(pos, " AND ")
	if len(neg) == 0 {
		return expr, true
	}
	if len(pos) > 1 {
		expr = "(" + expr + ")"
	}
	for _, n := range neg {
		expr += " NOT " + n
	}
	return expr, true
}
