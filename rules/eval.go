// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Context is the set of typed attributes carried by an evaluation request
// (§3 Request.context). Values are the raw strings/scalars as received; they
// are coerced to the declared FieldType at evaluation time.
type Context map[string]any

// Validate walks node and reports the first structural violation found:
// empty and/or children (§4.2), or a field reference whose name has no
// declared type (§3 I3). Validate is called once, at Snapshot build time,
// so malformed rules are rejected before they ever reach the hot evaluation
// path (§4.7 LoadError, §7).
func Validate(node *Node, fieldTypes FieldTypes) error {
	if node == nil {
		return fmt.Errorf("rules: nil node")
	}
	switch node.Kind {
	case KindField:
		if _, ok := fieldTypes[node.Field]; !ok {
			return fmt.Errorf("rules: field %q has no declared type", node.Field)
		}
		if err := validateOp(node, fieldTypes[node.Field]); err != nil {
			return err
		}
	case KindAnd, KindOr:
		if len(node.Children) == 0 {
			return fmt.Errorf("rules: %s node has no children", node.Kind)
		}
		for _, c := range node.Children {
			if err := Validate(c, fieldTypes); err != nil {
				return err
			}
		}
	case KindNot:
		if node.Child == nil {
			return fmt.Errorf("rules: not node has no child")
		}
		return Validate(node.Child, fieldTypes)
	default:
		return fmt.Errorf("rules: unknown node kind %q", node.Kind)
	}
	return nil
}

func validateOp(node *Node, ft FieldType) error {
	switch node.FOp {
	case OpEq, OpNeq:
		if len(node.Values) != 1 {
			return fmt.Errorf("rules: op %s on field %q requires exactly one value, got %d", node.FOp, node.Field, len(node.Values))
		}
	case OpGt, OpGte, OpLt, OpLte:
		if ft != FieldInt && ft != FieldFloat && ft != FieldSemver {
			return fmt.Errorf("rules: op %s not valid for field type %s", node.FOp, ft)
		}
		if len(node.Values) != 1 {
			return fmt.Errorf("rules: op %s on field %q requires exactly one value, got %d", node.FOp, node.Field, len(node.Values))
		}
	case OpIn, OpNotIn:
		if len(node.Values) == 0 {
			return fmt.Errorf("rules: op %s on field %q requires at least one value", node.FOp, node.Field)
		}
	case OpLike, OpNotLike:
		if ft != FieldString {
			return fmt.Errorf("rules: op %s only valid for string fields, field %q is %s", node.FOp, node.Field, ft)
		}
		if len(node.Values) != 1 {
			return fmt.Errorf("rules: op %s on field %q requires exactly one value, got %d", node.FOp, node.Field, len(node.Values))
		}
	default:
		return fmt.Errorf("rules: unknown operator %q", node.FOp)
	}
	return nil
}

// Evaluate evaluates node against ctx using fieldTypes to coerce values.
// Nodes are evaluated left to right with short-circuiting for and/or; not
// negates Match/NoMatch and propagates ErrorResult unchanged (§4.2).
//
// Evaluate never panics: any structural problem that Validate would have
// caught instead yields ErrorResult with a populated ErrorKind, so a rule
// that somehow bypassed validation still degrades to "no match" rather than
// crashing the request (§7 propagation policy).
func Evaluate(node *Node, ctx Context, fieldTypes FieldTypes) (Result, ErrorKind) {
	if node == nil {
		return ErrorResult, ErrorKindBadOperator
	}
	switch node.Kind {
	case KindField:
		return evalField(node, ctx, fieldTypes)
	case KindAnd:
		if len(node.Children) == 0 {
			return ErrorResult, ErrorKindEmptyChildren
		}
		for _, c := range node.Children {
			r, ek := Evaluate(c, ctx, fieldTypes)
			if r != Match {
				return r, ek
			}
		}
		return Match, ErrorKindNone
	case KindOr:
		if len(node.Children) == 0 {
			return ErrorResult, ErrorKindEmptyChildren
		}
		for _, c := range node.Children {
			r, ek := Evaluate(c, ctx, fieldTypes)
			if r == Match {
				return Match, ErrorKindNone
			}
			if r == ErrorResult {
				return ErrorResult, ek
			}
		}
		return NoMatch, ErrorKindNone
	case KindNot:
		r, ek := Evaluate(node.Child, ctx, fieldTypes)
		switch r {
		case Match:
			return NoMatch, ErrorKindNone
		case NoMatch:
			return Match, ErrorKindNone
		default:
			return ErrorResult, ek
		}
	default:
		return ErrorResult, ErrorKindBadOperator
	}
}

func evalField(node *Node, ctx Context, fieldTypes FieldTypes) (Result, ErrorKind) {
	ft, ok := fieldTypes[node.Field]
	if !ok {
		return ErrorResult, ErrorKindUnknownField
	}
	raw, ok := ctx[node.Field]
	if !ok {
		return ErrorResult, ErrorKindMissingField
	}
	if len(node.Values) == 0 {
		return ErrorResult, ErrorKindBadOperator
	}

	switch node.FOp {
	case OpEq, OpNeq:
		eq, err := scalarEquals(raw, node.Values[0], ft)
		if err != nil {
			return ErrorResult, ErrorKindTypeMismatch
		}
		if node.FOp == OpEq {
			return boolResult(eq), ErrorKindNone
		}
		return boolResult(!eq), ErrorKindNone

	case OpGt, OpGte, OpLt, OpLte:
		cmp, err := compare(raw, node.Values[0], ft)
		if err != nil {
			return ErrorResult, ErrorKindTypeMismatch
		}
		var match bool
		switch node.FOp {
		case OpGt:
			match = cmp > 0
		case OpGte:
			match = cmp >= 0
		case OpLt:
			match = cmp < 0
		case OpLte:
			match = cmp <= 0
		}
		return boolResult(match), ErrorKindNone

	case OpIn, OpNotIn:
		in := false
		for _, v := range node.Values {
			eq, err := scalarEquals(raw, v, ft)
			if err != nil {
				return ErrorResult, ErrorKindTypeMismatch
			}
			if eq {
				in = true
				break
			}
		}
		if node.FOp == OpIn {
			return boolResult(in), ErrorKindNone
		}
		return boolResult(!in), ErrorKindNone

	case OpLike, OpNotLike:
		if ft != FieldString {
			return ErrorResult, ErrorKindTypeMismatch
		}
		s, ok := raw.(string)
		if !ok {
			return ErrorResult, ErrorKindTypeMismatch
		}
		m := likeMatch(s, node.Values[0])
		if node.FOp == OpLike {
			return boolResult(m), ErrorKindNone
		}
		return boolResult(!m), ErrorKindNone

	default:
		return ErrorResult, ErrorKindBadOperator
	}
}

func boolResult(b bool) Result {
	if b {
		return Match
	}
	return NoMatch
}

// scalarEquals coerces both raw and literal to ft and compares for equality.
func scalarEquals(raw any, literal string, ft FieldType) (bool, error) {
	switch ft {
	case FieldString:
		s, ok := raw.(string)
		if !ok {
			return false, fmt.Errorf("rules: expected string, got %T", raw)
		}
		return s == literal, nil
	case FieldBool:
		rb, err := toBool(raw)
		if err != nil {
			return false, err
		}
		lb, err := strconv.ParseBool(literal)
		if err != nil {
			return false, err
		}
		return rb == lb, nil
	case FieldInt:
		ri, err := toInt(raw)
		if err != nil {
			return false, err
		}
		li, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return false, err
		}
		return ri == li, nil
	case FieldFloat:
		rf, err := toFloat(raw)
		if err != nil {
			return false, err
		}
		lf, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return false, err
		}
		return rf == lf, nil
	case FieldSemver:
		cmp, err := compareSemver(raw, literal)
		if err != nil {
			return false, err
		}
		return cmp == 0, nil
	default:
		return false, fmt.Errorf("rules: unknown field type %q", ft)
	}
}

// compare returns -1/0/1 comparing raw to literal under ft. Only defined for
// numeric and semver types; string/bool comparisons other than eq/neq are
// rejected at Validate time.
func compare(raw any, literal string, ft FieldType) (int, error) {
	switch ft {
	case FieldInt:
		ri, err := toInt(raw)
		if err != nil {
			return 0, err
		}
		li, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return 0, err
		}
		switch {
		case ri < li:
			return -1, nil
		case ri > li:
			return 1, nil
		default:
			return 0, nil
		}
	case FieldFloat:
		rf, err := toFloat(raw)
		if err != nil {
			return 0, err
		}
		lf, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return 0, err
		}
		switch {
		case rf < lf:
			return -1, nil
		case rf > lf:
			return 1, nil
		default:
			return 0, nil
		}
	case FieldSemver:
		return compareSemver(raw, literal)
	default:
		return 0, fmt.Errorf("rules: field type %s does not support ordering", ft)
	}
}

// compareSemver compares raw (coerced to a string) and literal as semantic
// versions using integer tuple semantics (10 > 2 on each component), per
// §4.2.
func compareSemver(raw any, literal string) (int, error) {
	rs, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("rules: expected string for semver field, got %T", raw)
	}
	rv, err := semver.NewVersion(rs)
	if err != nil {
		return 0, fmt.Errorf("rules: invalid semver %q: %w", rs, err)
	}
	lv, err := semver.NewVersion(literal)
	if err != nil {
		return 0, fmt.Errorf("rules: invalid semver %q: %w", literal, err)
	}
	return rv.Compare(lv), nil
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("rules: expected bool, got %T", raw)
	}
}

func toInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("rules: expected int, got %T", raw)
	}
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("rules: expected float, got %T", raw)
	}
}

// likeMatch matches s against pattern, where '*' matches any run of
// characters and no other metacharacter is special. Matching is anchored to
// the whole value (§4.2), not a substring search.
func likeMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	return likeMatchParts(s, parts)
}

func likeMatchParts(s string, parts []string) bool {
	if len(parts) == 1 {
		return s == parts[0]
	}
	// First part must be a prefix, last part must be a suffix; every part in
	// between must appear, in order, in the remaining middle.
	first, rest := parts[0], parts[1:]
	if !strings.HasPrefix(s, first) {
		return false
	}
	s = s[len(first):]
	last := rest[len(rest)-1]
	middle := rest[:len(rest)-1]

	for _, part := range middle {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, last)
}
