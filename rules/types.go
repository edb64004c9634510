// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rules implements C2: evaluation of a typed boolean rule tree
// against a request context (§4.2). The tree is a recursive sum type with a
// fixed, small set of node kinds; Evaluate switches on the node's Kind
// instead of using dynamic dispatch (§9 "Rule tree as tagged variant").
// Child nodes are held by pointer, each allocated separately.
package rules

// FieldType is the declared type of a context attribute, used to coerce raw
// request values before a comparison is applied (§3 FieldType, §4.2).
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldSemver FieldType = "semver"
)

// FieldTypes maps a context attribute name to its declared type.
type FieldTypes map[string]FieldType

// Op is a comparison or set operator applied to a field node.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpNotIn   Op = "not_in"
	OpLike    Op = "like"
	OpNotLike Op = "not_like"
)

// Kind identifies which variant of Node is populated.
type Kind string

const (
	KindField Kind = "field"
	KindAnd   Kind = "and"
	KindOr    Kind = "or"
	KindNot   Kind = "not"
)

// Node is the recursive sum type that makes up a rule tree (§3 "Rule node").
// Exactly one of the kind-specific fields is meaningful for a given Kind:
// Field/Op/Values for KindField, Children for KindAnd/KindOr, Child for
// KindNot.
type Node struct {
	Kind Kind

	// KindField
	Field  string
	FOp    Op
	Values []string

	// KindAnd / KindOr
	Children []*Node

	// KindNot
	Child *Node
}

// Result is the outcome of evaluating a Node against a context.
type Result int

const (
	NoMatch Result = iota
	Match
	// ErrorResult indicates the node could not be evaluated (missing context
	// field, type coercion failure, or a malformed operator). Callers treat
	// ErrorResult identically to NoMatch but must still record which ErrorKind
	// fired, for the §7 RuleEvalError counter.
	ErrorResult
)

// ErrorKind classifies why evaluation produced ErrorResult, for telemetry
// (§4.2, §7).
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindMissingField  ErrorKind = "missing_field"
	ErrorKindUnknownField  ErrorKind = "unknown_field_type"
	ErrorKindTypeMismatch  ErrorKind = "type_mismatch"
	ErrorKindBadOperator   ErrorKind = "bad_operator"
	ErrorKindEmptyChildren ErrorKind = "empty_children"
)

// Field builds a leaf comparison node.
func Field(field string, op Op, values ...string) *Node {
	return &Node{Kind: KindField, Field: field, FOp: op, Values: values}
}

// And builds a conjunction node. Per §4.2, an empty children set is illegal
// and must be rejected at load time, not at evaluation time — Validate
// enforces this.
func And(children ...*Node) *Node { return &Node{Kind: KindAnd, Children: children} }

// Or builds a disjunction node. Same empty-children restriction as And.
func Or(children ...*Node) *Node { return &Node{Kind: KindOr, Children: children} }

// Not builds a negation node.
func Not(child *Node) *Node { return &Node{Kind: KindNot, Child: child} }
