package query

import (
	"fmt"
	"strings"

	"github.com/noah-isme/campus-insight/internal/models"
)

// Filter is the closed set of WHERE predicates. Every variant lives in this
// package; the unexported marker keeps outside types from joining the set.
type Filter interface {
	Eval(row models.Row) bool
	filter()
}

// All matches every row (an empty WHERE).
type All struct{}

// And matches when every child matches.
type And struct {
	Children []Filter
}

// Or matches when any child matches.
type Or struct {
	Children []Filter
}

// Not inverts its child.
type Not struct {
	Child Filter
}

// CompareOp is a numeric comparison operator.
type CompareOp string

const (
	CompareLT CompareOp = "LT"
	CompareGT CompareOp = "GT"
	CompareEQ CompareOp = "EQ"
)

// Compare tests a numeric field against a constant.
type Compare struct {
	Op    CompareOp
	Field FieldRef
	Value float64
}

// Match tests a string field against a pattern with an optional leading
// and/or trailing wildcard.
type Match struct {
	Field   FieldRef
	Pattern string

	text     string
	leading  bool
	trailing bool
}

// NewMatch parses pattern; a '*' anywhere but the first or last position fails.
func NewMatch(field FieldRef, pattern string) (Match, error) {
	m := Match{Field: field, Pattern: pattern, text: pattern}
	if strings.HasPrefix(m.text, "*") {
		m.leading = true
		m.text = m.text[1:]
	}
	if strings.HasSuffix(m.text, "*") {
		m.trailing = true
		m.text = m.text[:len(m.text)-1]
	}
	if strings.Contains(m.text, "*") {
		return Match{}, fmt.Errorf("asterisks can only be the first or last characters of %q", pattern)
	}
	return m, nil
}

func (All) filter()     {}
func (And) filter()     {}
func (Or) filter()      {}
func (Not) filter()     {}
func (Compare) filter() {}
func (Match) filter()   {}

func (All) Eval(models.Row) bool { return true }

func (f And) Eval(row models.Row) bool {
	for _, child := range f.Children {
		if !child.Eval(row) {
			return false
		}
	}
	return true
}

func (f Or) Eval(row models.Row) bool {
	for _, child := range f.Children {
		if child.Eval(row) {
			return true
		}
	}
	return false
}

func (f Not) Eval(row models.Row) bool {
	return !f.Child.Eval(row)
}

func (f Compare) Eval(row models.Row) bool {
	v := f.Field.valueOf(row)
	if v.Type() != models.FieldNumber {
		return false
	}
	switch f.Op {
	case CompareLT:
		return v.Number() < f.Value
	case CompareGT:
		return v.Number() > f.Value
	case CompareEQ:
		return v.Number() == f.Value
	}
	return false
}

func (f Match) Eval(row models.Row) bool {
	v := f.Field.valueOf(row)
	if v.Type() != models.FieldString {
		return false
	}
	s := v.Str()
	switch {
	case f.leading && f.trailing:
		return strings.Contains(s, f.text)
	case f.leading:
		return strings.HasSuffix(s, f.text)
	case f.trailing:
		return strings.HasPrefix(s, f.text)
	default:
		return s == f.text
	}
}
