// Package queryexpr defines the closed operation grammar that generated
// expressions must fit inside. Expressions are parsed into an explicit Plan
// and validated against a dataset's columns before anything is evaluated;
// free-form code never executes.
//
// The grammar:
//
//	SELECT item [, item ...]
//	[WHERE column op literal [AND|OR column op literal ...]]
//	[GROUP BY column [, column ...]]
//	[ORDER BY column|alias [ASC|DESC]]
//	[LIMIT n]
//
// where item is a column, "*", or fn(column) with fn in
// count/sum/avg/min/max, and op is one of =, !=, >, >=, <, <=, CONTAINS.
package queryexpr

import (
	"fmt"
	"strings"
)

// AggFunc is an allow-listed aggregate function.
type AggFunc string

const (
	AggNone  AggFunc = ""
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// CompareOp is an allow-listed comparison operator.
type CompareOp string

const (
	OpEq       CompareOp = "="
	OpNeq      CompareOp = "!="
	OpGt       CompareOp = ">"
	OpGte      CompareOp = ">="
	OpLt       CompareOp = "<"
	OpLte      CompareOp = "<="
	OpContains CompareOp = "contains"
)

// BoolOp connects WHERE clauses.
type BoolOp string

const (
	BoolAnd BoolOp = "and"
	BoolOr  BoolOp = "or"
)

// SelectItem is one projection: a bare column, "*", or an aggregate call.
type SelectItem struct {
	Column string  // empty for count(*)
	Func   AggFunc // AggNone for a bare column
	Alias  string
	Star   bool // true for a bare "*" projection
}

// OutputName is the column name this item produces in the result set.
func (it SelectItem) OutputName() string {
	if it.Alias != "" {
		return it.Alias
	}
	if it.Func != AggNone {
		if it.Column == "" {
			return "count"
		}
		return string(it.Func) + "_" + it.Column
	}
	return it.Column
}

// Condition is one WHERE clause. Connector relates it to the previous
// clause and is empty on the first.
type Condition struct {
	Connector BoolOp
	Column    string
	Op        CompareOp
	Value     string // raw literal, unquoted
}

// Plan is a parsed, validated expression ready for evaluation.
type Plan struct {
	Select  []SelectItem
	Where   []Condition
	GroupBy []string
	OrderBy string
	Desc    bool
	Limit   int // 0 = no explicit limit
}

// HasAggregate reports whether any select item aggregates.
func (p *Plan) HasAggregate() bool {
	for _, it := range p.Select {
		if it.Func != AggNone {
			return true
		}
	}
	return false
}

// SyntaxError describes an expression that falls outside the grammar.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string { return e.Message }

func syntaxErrorf(format string, args ...any) error {
	return &SyntaxError{Message: fmt.Sprintf(format, args...)}
}

// Parse turns a generated expression into a Plan, rejecting anything outside
// the closed grammar.
func Parse(expression string) (*Plan, error) {
	tokens, err := lex(expression)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	plan, err := p.parse()
	if err != nil {
		return nil, err
	}
	return plan, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return token{kind: tokEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) parse() (*Plan, error) {
	if !p.peek().isKeyword("select") {
		return nil, syntaxErrorf("expression must begin with SELECT")
	}
	p.next()

	plan := &Plan{}
	if err := p.parseSelectList(plan); err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return plan, nil
		case t.isKeyword("where"):
			p.next()
			if err := p.parseWhere(plan); err != nil {
				return nil, err
			}
		case t.isKeyword("group"):
			p.next()
			if !p.next().isKeyword("by") {
				return nil, syntaxErrorf("expected BY after GROUP")
			}
			if err := p.parseGroupBy(plan); err != nil {
				return nil, err
			}
		case t.isKeyword("order"):
			p.next()
			if !p.next().isKeyword("by") {
				return nil, syntaxErrorf("expected BY after ORDER")
			}
			if err := p.parseOrderBy(plan); err != nil {
				return nil, err
			}
		case t.isKeyword("limit"):
			p.next()
			n := p.next()
			if n.kind != tokNumber {
				return nil, syntaxErrorf("LIMIT requires a number, got %q", n.text)
			}
			limit, err := n.intValue()
			if err != nil || limit < 0 {
				return nil, syntaxErrorf("invalid LIMIT %q", n.text)
			}
			plan.Limit = limit
		default:
			return nil, syntaxErrorf("unsupported operation near %q", t.text)
		}
	}
}

func (p *parser) parseSelectList(plan *Plan) error {
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return err
		}
		plan.Select = append(plan.Select, item)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		return nil
	}
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	t := p.next()
	switch t.kind {
	case tokStar:
		return SelectItem{Star: true}, nil
	case tokIdent:
		// Aggregate call?
		if fn := parseAggFunc(t.text); fn != AggNone && p.peek().kind == tokLParen {
			p.next() // consume (
			arg := p.next()
			var col string
			switch {
			case arg.kind == tokStar:
				if fn != AggCount {
					return SelectItem{}, syntaxErrorf("%s(*) is not allowed", fn)
				}
			case arg.kind == tokIdent || arg.kind == tokString:
				col = arg.text
			default:
				return SelectItem{}, syntaxErrorf("invalid argument to %s()", fn)
			}
			if p.next().kind != tokRParen {
				return SelectItem{}, syntaxErrorf("missing ) after %s()", fn)
			}
			item := SelectItem{Column: col, Func: fn}
			item.Alias = p.parseAlias()
			return item, nil
		}
		item := SelectItem{Column: t.text}
		item.Alias = p.parseAlias()
		return item, nil
	case tokString:
		item := SelectItem{Column: t.text}
		item.Alias = p.parseAlias()
		return item, nil
	default:
		return SelectItem{}, syntaxErrorf("unexpected %q in select list", t.text)
	}
}

func (p *parser) parseAlias() string {
	if p.peek().isKeyword("as") {
		p.next()
		a := p.next()
		if a.kind == tokIdent || a.kind == tokString {
			return a.text
		}
	}
	return ""
}

func (p *parser) parseWhere(plan *Plan) error {
	connector := BoolOp("")
	for {
		col := p.next()
		if col.kind != tokIdent && col.kind != tokString {
			return syntaxErrorf("expected column in WHERE, got %q", col.text)
		}

		opTok := p.next()
		var op CompareOp
		switch {
		case opTok.kind == tokOp:
			op = CompareOp(opTok.text)
		case opTok.isKeyword("contains"):
			op = OpContains
		default:
			return syntaxErrorf("unsupported comparison %q", opTok.text)
		}

		val := p.next()
		if val.kind != tokIdent && val.kind != tokString && val.kind != tokNumber {
			return syntaxErrorf("expected literal in WHERE, got %q", val.text)
		}

		plan.Where = append(plan.Where, Condition{
			Connector: connector,
			Column:    col.text,
			Op:        op,
			Value:     val.text,
		})

		t := p.peek()
		switch {
		case t.isKeyword("and"):
			p.next()
			connector = BoolAnd
		case t.isKeyword("or"):
			p.next()
			connector = BoolOr
		default:
			return nil
		}
	}
}

func (p *parser) parseGroupBy(plan *Plan) error {
	for {
		t := p.next()
		if t.kind != tokIdent && t.kind != tokString {
			return syntaxErrorf("expected column in GROUP BY, got %q", t.text)
		}
		plan.GroupBy = append(plan.GroupBy, t.text)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		return nil
	}
}

func (p *parser) parseOrderBy(plan *Plan) error {
	t := p.next()
	if t.kind != tokIdent && t.kind != tokString {
		return syntaxErrorf("expected column in ORDER BY, got %q", t.text)
	}
	plan.OrderBy = t.text
	switch {
	case p.peek().isKeyword("desc"):
		p.next()
		plan.Desc = true
	case p.peek().isKeyword("asc"):
		p.next()
	}
	return nil
}

func parseAggFunc(word string) AggFunc {
	switch strings.ToLower(word) {
	case "count":
		return AggCount
	case "sum":
		return AggSum
	case "avg", "mean", "average":
		return AggAvg
	case "min":
		return AggMin
	case "max":
		return AggMax
	default:
		return AggNone
	}
}
