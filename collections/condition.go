/*
condition.go - Boolean predicate trees over a flat debt context

PURPOSE:
  Transition rules may carry a condition: a tree of comparison and logical
  nodes evaluated against a snapshot of the debt. The tree is a tagged union
  (Comparison | Logical) so that unknown node shapes are unrepresentable once
  parsed; factory.ParseCondition rejects bad trees at construction time.

SEMANTICS:
  - Comparison operators: eq, neq, gt, gte, lt, lte, in, not_in
  - and/or evaluate ALL children (evaluation is pure, no short-circuit)
  - not requires exactly one child; any other arity is a fatal input error
  - An unknown operator is a fatal input error, never a silent false

CONTEXT:
  RuleContext is a flat map of field name to FieldValue. A field absent from
  the context reads as the null value: eq/neq compare against null normally,
  ordering operators on null evaluate to false.

SEE ALSO:
  - rules.go: BuildRuleContext and rule selection
  - factory/condition.go: JSON parsing and legacy normalization
*/
package collections

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// FIELD VALUE - Tagged scalar for context entries and comparison operands
// =============================================================================

type FieldKind int

const (
	KindNull FieldKind = iota
	KindNumber
	KindText
	KindBool
)

type FieldValue struct {
	Kind   FieldKind
	Number decimal.Decimal
	Text   string
	Bool   bool
}

func NullValue() FieldValue                      { return FieldValue{Kind: KindNull} }
func NumberValue(d decimal.Decimal) FieldValue   { return FieldValue{Kind: KindNumber, Number: d} }
func NumberValueFromInt(n int) FieldValue        { return NumberValue(decimal.NewFromInt(int64(n))) }
func TextValue(s string) FieldValue              { return FieldValue{Kind: KindText, Text: s} }
func BoolValue(b bool) FieldValue                { return FieldValue{Kind: KindBool, Bool: b} }

// Equal compares two field values. Values of different kinds are unequal;
// two nulls are equal.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindNumber:
		return v.Number.Equal(o.Number)
	case KindText:
		return v.Text == o.Text
	default:
		return v.Bool == o.Bool
	}
}

// =============================================================================
// RULE CONTEXT - Flat snapshot the conditions read from
// =============================================================================

type RuleContext map[string]FieldValue

// Get returns the named field, or the null value when absent.
func (c RuleContext) Get(field string) FieldValue {
	if v, ok := c[field]; ok {
		return v
	}
	return NullValue()
}

// =============================================================================
// CONDITION - Tagged union: Comparison | Logical
// =============================================================================

type CompareOp string

const (
	OpEq    CompareOp = "eq"
	OpNeq   CompareOp = "neq"
	OpGt    CompareOp = "gt"
	OpGte   CompareOp = "gte"
	OpLt    CompareOp = "lt"
	OpLte   CompareOp = "lte"
	OpIn    CompareOp = "in"
	OpNotIn CompareOp = "not_in"
)

type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
	OpNot LogicalOp = "not"
)

// Condition is the predicate tree node. The two implementations are
// Comparison and Logical; nothing else can implement it.
type Condition interface {
	Evaluate(ctx RuleContext) (bool, error)
	node()
}

// Comparison tests one context field against a value (or value set for
// in/not_in).
type Comparison struct {
	Field  string
	Op     CompareOp
	Value  FieldValue   // operand for scalar operators
	Values []FieldValue // operand set for in/not_in
}

func (Comparison) node() {}

// Logical combines child conditions. All children are evaluated; there is
// no short-circuit because evaluation is pure.
type Logical struct {
	Op       LogicalOp
	Children []Condition
}

func (Logical) node() {}

// =============================================================================
// EVALUATION
// =============================================================================

func (c Comparison) Evaluate(ctx RuleContext) (bool, error) {
	actual := ctx.Get(c.Field)

	switch c.Op {
	case OpEq:
		return actual.Equal(c.Value), nil
	case OpNeq:
		return !actual.Equal(c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		return compareOrdered(actual, c.Op, c.Value)
	case OpIn:
		return containsValue(c.Values, actual), nil
	case OpNotIn:
		return !containsValue(c.Values, actual), nil
	default:
		return false, &MalformedConditionError{Reason: "unknown comparison operator: " + string(c.Op)}
	}
}

func compareOrdered(actual FieldValue, op CompareOp, operand FieldValue) (bool, error) {
	if operand.Kind != KindNumber {
		return false, &MalformedConditionError{Reason: "ordering operator requires a numeric operand"}
	}
	// A null (missing) field never satisfies an ordering comparison.
	if actual.Kind == KindNull {
		return false, nil
	}
	if actual.Kind != KindNumber {
		return false, &MalformedConditionError{Reason: "ordering comparison on non-numeric field"}
	}

	cmp := actual.Number.Cmp(operand.Number)
	switch op {
	case OpGt:
		return cmp > 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLt:
		return cmp < 0, nil
	default: // OpLte
		return cmp <= 0, nil
	}
}

func containsValue(set []FieldValue, v FieldValue) bool {
	for _, item := range set {
		if item.Equal(v) {
			return true
		}
	}
	return false
}

func (l Logical) Evaluate(ctx RuleContext) (bool, error) {
	switch l.Op {
	case OpAnd, OpOr:
		// Evaluate every child first, then combine.
		results := make([]bool, len(l.Children))
		for i, child := range l.Children {
			r, err := child.Evaluate(ctx)
			if err != nil {
				return false, err
			}
			results[i] = r
		}
		if l.Op == OpAnd {
			for _, r := range results {
				if !r {
					return false, nil
				}
			}
			return true, nil
		}
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil

	case OpNot:
		if len(l.Children) != 1 {
			return false, &MalformedConditionError{Reason: "not requires exactly one child"}
		}
		r, err := l.Children[0].Evaluate(ctx)
		if err != nil {
			return false, err
		}
		return !r, nil

	default:
		return false, &MalformedConditionError{Reason: "unknown logical operator: " + string(l.Op)}
	}
}
