/*
Package factory provides JSON to Go rule-condition conversion.

PURPOSE:
  Transition rules are configured as data, and their optional condition is a
  JSON tree. This package converts that JSON into the collections.Condition
  tagged union, rejecting malformed trees at construction time so the
  evaluator never sees an unknown node shape.

WHY JSON?
  - Non-developers configure collection policy in the admin UI
  - Conditions are stored alongside the rule row in the database
  - Version control for policy definitions

JSON SCHEMA:
  Comparison node:
    {"field": "days_overdue", "operator": "gte", "value": 30}
    {"field": "current_state", "operator": "in", "value": ["new", "in_management"]}

  Logical node:
    {"operator": "and", "children": [ <node>, <node>, ... ]}
    {"operator": "not", "children": [ <node> ]}

LEGACY OBJECTS:
  Historical rule rows carry free-form objects that are not condition nodes
  at all (e.g. {"minDays": 30}). NormalizeCondition treats those as "no
  constraint" and returns nil - a deliberate backward-compatibility decision,
  not a validation gap. Objects that DO look like condition nodes are parsed
  strictly and fail loudly when malformed.

USAGE:
  cond, err := factory.NormalizeCondition(rule.ConditionJSON)
  // cond == nil means the rule is unconditionally applicable

SEE ALSO:
  - collections/condition.go: The Condition union and its evaluation
  - store/sqlite: Stores the raw JSON, parses on load
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/collections-engine/collections"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// conditionJSON is the superset shape of both node kinds. Which kind a node
// is gets decided by its operator.
type conditionJSON struct {
	Field    string            `json:"field,omitempty"`
	Operator string            `json:"operator"`
	Value    json.RawMessage   `json:"value,omitempty"`
	Children []json.RawMessage `json:"children,omitempty"`
}

var comparisonOps = map[string]collections.CompareOp{
	"eq":     collections.OpEq,
	"neq":    collections.OpNeq,
	"gt":     collections.OpGt,
	"gte":    collections.OpGte,
	"lt":     collections.OpLt,
	"lte":    collections.OpLte,
	"in":     collections.OpIn,
	"not_in": collections.OpNotIn,
}

var logicalOps = map[string]collections.LogicalOp{
	"and": collections.OpAnd,
	"or":  collections.OpOr,
	"not": collections.OpNot,
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCondition converts a JSON condition tree into a Condition, failing on
// any unknown operator, bad arity, or unusable operand.
func ParseCondition(raw json.RawMessage) (collections.Condition, error) {
	var node conditionJSON
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&node); err != nil {
		return nil, &collections.MalformedConditionError{Reason: "not a JSON object: " + err.Error()}
	}

	if lop, ok := logicalOps[node.Operator]; ok {
		return parseLogical(lop, node)
	}
	if cop, ok := comparisonOps[node.Operator]; ok {
		return parseComparison(cop, node)
	}
	return nil, &collections.MalformedConditionError{Reason: "unknown operator: " + node.Operator}
}

func parseLogical(op collections.LogicalOp, node conditionJSON) (collections.Condition, error) {
	if op == collections.OpNot && len(node.Children) != 1 {
		return nil, &collections.MalformedConditionError{
			Reason: fmt.Sprintf("not requires exactly one child, got %d", len(node.Children)),
		}
	}
	if len(node.Children) == 0 {
		return nil, &collections.MalformedConditionError{Reason: string(op) + " requires children"}
	}

	children := make([]collections.Condition, 0, len(node.Children))
	for _, rawChild := range node.Children {
		child, err := ParseCondition(rawChild)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return collections.Logical{Op: op, Children: children}, nil
}

func parseComparison(op collections.CompareOp, node conditionJSON) (collections.Condition, error) {
	if node.Field == "" {
		return nil, &collections.MalformedConditionError{Reason: "comparison requires a field"}
	}

	cmp := collections.Comparison{Field: node.Field, Op: op}

	if op == collections.OpIn || op == collections.OpNotIn {
		values, err := parseValueList(node.Value)
		if err != nil {
			return nil, err
		}
		cmp.Values = values
		return cmp, nil
	}

	value, err := parseValue(node.Value)
	if err != nil {
		return nil, err
	}
	cmp.Value = value
	return cmp, nil
}

func parseValue(raw json.RawMessage) (collections.FieldValue, error) {
	if len(raw) == 0 {
		return collections.NullValue(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return collections.FieldValue{}, &collections.MalformedConditionError{Reason: "unreadable value: " + err.Error()}
	}

	switch t := v.(type) {
	case nil:
		return collections.NullValue(), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return collections.FieldValue{}, &collections.MalformedConditionError{Reason: "bad number: " + t.String()}
		}
		return collections.NumberValue(d), nil
	case string:
		return collections.TextValue(t), nil
	case bool:
		return collections.BoolValue(t), nil
	default:
		return collections.FieldValue{}, &collections.MalformedConditionError{Reason: "value must be a scalar"}
	}
}

func parseValueList(raw json.RawMessage) ([]collections.FieldValue, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &collections.MalformedConditionError{Reason: "in/not_in requires an array value"}
	}

	values := make([]collections.FieldValue, 0, len(items))
	for _, item := range items {
		v, err := parseValue(item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// =============================================================================
// LEGACY NORMALIZATION
// =============================================================================

// NormalizeCondition is the loader-facing entry point. It returns:
//   - (nil, nil) for empty input, JSON null, or a legacy free-form object
//     that is not shaped like a condition node ("no constraint")
//   - the parsed Condition for a well-shaped tree
//   - an error for a tree that claims to be a condition but is malformed
func NormalizeCondition(raw json.RawMessage) (collections.Condition, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		// Not an object at all: legacy data, no constraint.
		return nil, nil
	}
	if _, ok := probe["operator"]; !ok {
		// Legacy free-form object such as {"minDays": 30}: no constraint.
		return nil, nil
	}

	return ParseCondition(trimmed)
}

// =============================================================================
// SERIALIZATION - Used when seeding or editing rules
// =============================================================================

// MarshalCondition renders a Condition back to its JSON tree form.
func MarshalCondition(c collections.Condition) (json.RawMessage, error) {
	if c == nil {
		return nil, nil
	}

	switch node := c.(type) {
	case collections.Comparison:
		out := map[string]any{"field": node.Field, "operator": string(node.Op)}
		if node.Op == collections.OpIn || node.Op == collections.OpNotIn {
			vals := make([]any, 0, len(node.Values))
			for _, v := range node.Values {
				vals = append(vals, fieldValueJSON(v))
			}
			out["value"] = vals
		} else {
			out["value"] = fieldValueJSON(node.Value)
		}
		return json.Marshal(out)

	case collections.Logical:
		children := make([]json.RawMessage, 0, len(node.Children))
		for _, child := range node.Children {
			raw, err := MarshalCondition(child)
			if err != nil {
				return nil, err
			}
			children = append(children, raw)
		}
		return json.Marshal(map[string]any{"operator": string(node.Op), "children": children})

	default:
		return nil, fmt.Errorf("unknown condition node %T", c)
	}
}

func fieldValueJSON(v collections.FieldValue) any {
	switch v.Kind {
	case collections.KindNumber:
		// json.Number keeps the decimal text exact.
		return json.Number(v.Number.String())
	case collections.KindText:
		return v.Text
	case collections.KindBool:
		return v.Bool
	default:
		return nil
	}
}
