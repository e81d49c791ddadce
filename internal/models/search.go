package models

import (
	"fmt"
	"strings"
	"unicode"
)

// Filter narrows a query by facet. Facets are AND'ed together; Tags is an OR
// set (a record matches if it carries any requested tag). Zero values mean
// "no constraint".
type Filter struct {
	Tags         []string       `json:"tags,omitempty"`
	CountryPair  string         `json:"country_pair,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	EntryType    EntryType      `json:"entry_type,omitempty"`
	Expression   *TagExpression `json:"-"` // Optional boolean expression over tags
}

// IsZero reports whether the filter constrains nothing
func (f Filter) IsZero() bool {
	return len(f.Tags) == 0 && f.CountryPair == "" && f.ResourceType == "" &&
		f.EntryType == "" && f.Expression == nil
}

// Matches evaluates the filter directly against a record, without an index
func (f Filter) Matches(r TemplateRecord) bool {
	if len(f.Tags) > 0 {
		matched := false
		for _, tag := range f.Tags {
			if r.HasTag(tag) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.CountryPair != "" && r.CountryPair != f.CountryPair {
		return false
	}
	if f.ResourceType != "" && r.ResourceType != f.ResourceType {
		return false
	}
	if f.EntryType != "" && r.EntryType != f.EntryType {
		return false
	}
	if f.Expression != nil && !f.Expression.Evaluate(r.Tags) {
		return false
	}
	return true
}

// Query is a filtered, optionally free-text, request against the index
type Query struct {
	Filter
	FreeText string `json:"free_text,omitempty"`
	Limit    int    `json:"limit,omitempty"` // 0 means unlimited
}

// ExpressionType defines the type of boolean tag expression
type ExpressionType string

const (
	ExpressionTag ExpressionType = "tag"
	ExpressionAnd ExpressionType = "and"
	ExpressionOr  ExpressionType = "or"
	ExpressionXor ExpressionType = "xor"
	ExpressionNot ExpressionType = "not"
)

// TagExpression is a boolean expression over a record's tags
type TagExpression struct {
	Type     ExpressionType
	Tag      string           // set when Type is ExpressionTag
	Operands []*TagExpression // set for operators
}

// Evaluate evaluates the expression against a tag list. Tag comparison is
// exact after trimming, like the tag facet.
func (te *TagExpression) Evaluate(tags []string) bool {
	if te == nil {
		return true
	}

	switch te.Type {
	case ExpressionTag:
		return containsTag(tags, te.Tag)

	case ExpressionAnd:
		for _, expr := range te.Operands {
			if !expr.Evaluate(tags) {
				return false
			}
		}
		return true

	case ExpressionOr:
		for _, expr := range te.Operands {
			if expr.Evaluate(tags) {
				return true
			}
		}
		return false

	case ExpressionXor:
		if len(te.Operands) != 2 {
			return false
		}
		return te.Operands[0].Evaluate(tags) != te.Operands[1].Evaluate(tags)

	case ExpressionNot:
		if len(te.Operands) != 1 {
			return false
		}
		return !te.Operands[0].Evaluate(tags)

	default:
		return false
	}
}

// String returns a human-readable representation of the expression
func (te *TagExpression) String() string {
	if te == nil {
		return ""
	}

	switch te.Type {
	case ExpressionTag:
		return fmt.Sprintf("[%s]", te.Tag)
	case ExpressionNot:
		if len(te.Operands) == 1 {
			return "NOT " + te.Operands[0].String()
		}
		return "NOT ?"
	case ExpressionAnd, ExpressionOr, ExpressionXor:
		parts := make([]string, len(te.Operands))
		for i, expr := range te.Operands {
			parts[i] = expr.String()
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(te.Type))+" ") + ")"
	default:
		return "(?)"
	}
}

func containsTag(tags []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == target {
			return true
		}
	}
	return false
}

// NewTagExpression creates a new tag expression
func NewTagExpression(tag string) *TagExpression {
	return &TagExpression{Type: ExpressionTag, Tag: tag}
}

// NewAndExpression creates a new AND expression
func NewAndExpression(expressions ...*TagExpression) *TagExpression {
	return &TagExpression{Type: ExpressionAnd, Operands: expressions}
}

// NewOrExpression creates a new OR expression
func NewOrExpression(expressions ...*TagExpression) *TagExpression {
	return &TagExpression{Type: ExpressionOr, Operands: expressions}
}

// NewXorExpression creates a new XOR expression
func NewXorExpression(left, right *TagExpression) *TagExpression {
	return &TagExpression{Type: ExpressionXor, Operands: []*TagExpression{left, right}}
}

// NewNotExpression creates a new NOT expression
func NewNotExpression(expr *TagExpression) *TagExpression {
	return &TagExpression{Type: ExpressionNot, Operands: []*TagExpression{expr}}
}

// ParseTagExpression parses expressions such as
//
//	Hague AND (Police OR "Central Authority") AND NOT Draft
//
// Operators are upper-case AND, OR, XOR, NOT. Precedence from loosest to
// tightest is OR, XOR, AND, NOT. A bare tag may span several words; quote it
// to include an operator word.
func ParseTagExpression(input string) (*TagExpression, error) {
	toks, err := lexExpression(input)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}

	p := &exprParser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("unexpected %q at position %d", p.toks[p.pos].text, p.pos)
	}
	return expr, nil
}

type exprTokenKind int

const (
	tokWord exprTokenKind = iota
	tokQuoted
	tokLParen
	tokRParen
)

type exprToken struct {
	kind exprTokenKind
	text string
}

func lexExpression(input string) ([]exprToken, error) {
	var toks []exprToken
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, exprToken{kind: tokLParen, text: "("})
			i++
		case r == ')':
			toks = append(toks, exprToken{kind: tokRParen, text: ")"})
			i++
		case r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("unterminated quote")
			}
			toks = append(toks, exprToken{kind: tokQuoted, text: string(runes[i+1 : end])})
			i = end + 1
		default:
			end := i
			for end < len(runes) && !unicode.IsSpace(runes[end]) && runes[end] != '(' && runes[end] != ')' && runes[end] != '"' {
				end++
			}
			toks = append(toks, exprToken{kind: tokWord, text: string(runes[i:end])})
			i = end
		}
	}
	return toks, nil
}

type exprParser struct {
	toks []exprToken
	pos  int
}

func (p *exprParser) peekOperator(op string) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == tokWord && p.toks[p.pos].text == op
}

func isOperatorWord(t exprToken) bool {
	if t.kind != tokWord {
		return false
	}
	switch t.text {
	case "AND", "OR", "XOR", "NOT":
		return true
	}
	return false
}

func (p *exprParser) parseOr() (*TagExpression, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	operands := []*TagExpression{left}
	for p.peekOperator("OR") {
		p.pos++
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return NewOrExpression(operands...), nil
}

func (p *exprParser) parseXor() (*TagExpression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekOperator("XOR") {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = NewXorExpression(left, right)
	}
	return left, nil
}

func (p *exprParser) parseAnd() (*TagExpression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	operands := []*TagExpression{left}
	for p.peekOperator("AND") {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return NewAndExpression(operands...), nil
}

func (p *exprParser) parseUnary() (*TagExpression, error) {
	if p.peekOperator("NOT") {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NewNotExpression(inner), nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (*TagExpression, error) {
	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	tok := p.toks[p.pos]
	switch {
	case tok.kind == tokLParen:
		p.pos++
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, fmt.Errorf("unbalanced parentheses in expression")
		}
		p.pos++
		return expr, nil

	case tok.kind == tokQuoted:
		p.pos++
		return NewTagExpression(tok.text), nil

	case tok.kind == tokWord && !isOperatorWord(tok):
		// Consecutive bare words form one multi-word tag
		words := []string{tok.text}
		p.pos++
		for p.pos < len(p.toks) && p.toks[p.pos].kind == tokWord && !isOperatorWord(p.toks[p.pos]) {
			words = append(words, p.toks[p.pos].text)
			p.pos++
		}
		return NewTagExpression(strings.Join(words, " ")), nil

	default:
		return nil, fmt.Errorf("unexpected %q at position %d", tok.text, p.pos)
	}
}
