// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package merge

// DeepMerge merges b (the loser) into a (the winner) per §4.4's "Deep merge
// semantics": if both are objects, union keys, recursing on intersecting
// keys; otherwise a wins whole. Arrays are opaque values — never merged
// element-wise. Types must match to recurse; a type mismatch on an
// intersecting key keeps the winner's value untouched.
//
// DeepMerge never mutates a or b; it returns a new map so that the caller's
// accumulator and the variant's original params remain independently safe
// to reuse across requests.
func DeepMerge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range a {
		if existing, ok := out[k]; ok {
			out[k] = mergeValue(v, existing)
		} else {
			out[k] = v
		}
	}
	return out
}

// mergeValue merges winner over loser for a single key: recurse if both are
// objects, else the winner is preserved whole.
func mergeValue(winner, loser any) any {
	winnerObj, wOK := winner.(map[string]any)
	loserObj, lOK := loser.(map[string]any)
	if wOK && lOK {
		return DeepMerge(winnerObj, loserObj)
	}
	return winner
}
