// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ft() FieldTypes {
	return FieldTypes{
		"country": FieldString,
		"age":     FieldInt,
		"score":   FieldFloat,
		"beta":    FieldBool,
		"version": FieldSemver,
		"plan":    FieldString,
	}
}

func TestEvaluateScenario3RuleGatesAssignment(t *testing.T) {
	rule := And(Field("country", OpEq, "US"), Field("age", OpGte, "18"))

	cases := []struct {
		name string
		ctx  Context
		want Result
	}{
		{"matches", Context{"country": "US", "age": int64(25)}, Match},
		{"too young", Context{"country": "US", "age": int64(17)}, NoMatch},
		{"wrong country", Context{"country": "CA", "age": int64(25)}, NoMatch},
		{"missing country errors to no-match", Context{"age": int64(25)}, ErrorResult},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, _ := Evaluate(rule, c.ctx, ft())
			require.Equal(t, c.want, got)
		})
	}
}

func TestEvaluateOrShortCircuits(t *testing.T) {
	rule := Or(Field("country", OpEq, "US"), Field("country", OpEq, "CA"))
	got, ek := Evaluate(rule, Context{"country": "US"}, ft())
	require.Equal(t, Match, got)
	require.Equal(t, ErrorKindNone, ek)
}

func TestEvaluateNotNegates(t *testing.T) {
	rule := Not(Field("country", OpEq, "US"))
	got, _ := Evaluate(rule, Context{"country": "CA"}, ft())
	require.Equal(t, Match, got)

	got, _ = Evaluate(rule, Context{"country": "US"}, ft())
	require.Equal(t, NoMatch, got)
}

func TestEvaluateNotPropagatesError(t *testing.T) {
	rule := Not(Field("country", OpEq, "US"))
	got, ek := Evaluate(rule, Context{}, ft())
	require.Equal(t, ErrorResult, got)
	require.Equal(t, ErrorKindMissingField, ek)
}

func TestEvaluateInNotIn(t *testing.T) {
	rule := Field("plan", OpIn, "gold", "platinum")
	got, _ := Evaluate(rule, Context{"plan": "gold"}, ft())
	require.Equal(t, Match, got)

	got, _ = Evaluate(rule, Context{"plan": "silver"}, ft())
	require.Equal(t, NoMatch, got)

	rule2 := Field("plan", OpNotIn, "gold", "platinum")
	got, _ = Evaluate(rule2, Context{"plan": "silver"}, ft())
	require.Equal(t, Match, got)
}

func TestEvaluateLike(t *testing.T) {
	rule := Field("plan", OpLike, "gold-*")
	got, _ := Evaluate(rule, Context{"plan": "gold-tier-3"}, ft())
	require.Equal(t, Match, got)

	got, _ = Evaluate(rule, Context{"plan": "silver-tier-3"}, ft())
	require.Equal(t, NoMatch, got)

	// Whole-value match, not substring: a value with "gold" in the middle
	// matches only when the pattern wraps it in '*' on both sides.
	wrapped := Field("plan", OpLike, "*gold*")
	got, _ = Evaluate(wrapped, Context{"plan": "subgoldex"}, ft())
	require.Equal(t, Match, got)
}

func TestEvaluateSemverOrdering(t *testing.T) {
	rule := Field("version", OpGt, "2.0.0")
	got, _ := Evaluate(rule, Context{"version": "10.0.0"}, ft())
	require.Equal(t, Match, got, "semver compares by tuple, not lexicographically: 10 > 2")

	got, _ = Evaluate(rule, Context{"version": "1.9.9"}, ft())
	require.Equal(t, NoMatch, got)
}

func TestEvaluateTypeMismatchIsError(t *testing.T) {
	rule := Field("age", OpGt, "18")
	got, ek := Evaluate(rule, Context{"age": "not-a-number"}, ft())
	require.Equal(t, ErrorResult, got)
	require.Equal(t, ErrorKindTypeMismatch, ek)
}

func TestValidateRejectsEmptyChildren(t *testing.T) {
	err := Validate(&Node{Kind: KindAnd}, ft())
	require.Error(t, err)
}

func TestValidateRejectsUndeclaredField(t *testing.T) {
	err := Validate(Field("unknown_field", OpEq, "x"), ft())
	require.Error(t, err)
}

func TestValidateRejectsLikeOnNonString(t *testing.T) {
	err := Validate(Field("age", OpLike, "1*"), ft())
	require.Error(t, err)
}

// P8: for each op, (a op b) == !(a negation-of-op b) where defined.
func TestEvaluateCompletenessEqNeq(t *testing.T) {
	eq := Field("country", OpEq, "US")
	neq := Field("country", OpNeq, "US")
	ctx := Context{"country": "US"}

	gotEq, _ := Evaluate(eq, ctx, ft())
	gotNeq, _ := Evaluate(neq, ctx, ft())
	require.Equal(t, gotEq == Match, gotNeq != Match)
}

func TestEvaluateCompletenessInNotIn(t *testing.T) {
	in := Field("plan", OpIn, "gold")
	notIn := Field("plan", OpNotIn, "gold")
	ctx := Context{"plan": "gold"}

	gotIn, _ := Evaluate(in, ctx, ft())
	gotNotIn, _ := Evaluate(notIn, ctx, ft())
	require.Equal(t, gotIn == Match, gotNotIn != Match)
}
