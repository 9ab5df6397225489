/**
 * @description
 * Minimal before/after diffing over flat field snapshots. Used by the audit
 * log to persist only the fields a mutation actually changed.
 *
 * Equality is structural: both values are serialized to JSON and the
 * serializations compared, so 5 == 5.0 across int/float decodings and nested
 * values compare by content rather than identity.
 */

package delta

import (
	"encoding/json"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
)

// Diff computes the minimal difference between two flat snapshots. The key
// set is the union of both maps; keys whose serialized values are equal are
// omitted. A nil result means nothing changed and callers must treat it as
// "nothing to audit", not as an empty change set.
func Diff(before, after map[string]any) map[string]domain.FieldChange {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	var changes map[string]domain.FieldChange
	for key := range keys {
		// A key absent on one side diffs as null on that side.
		beforeVal := before[key]
		afterVal := after[key]
		if equal(beforeVal, afterVal) {
			continue
		}
		if changes == nil {
			changes = make(map[string]domain.FieldChange)
		}
		changes[key] = domain.FieldChange{From: beforeVal, To: afterVal}
	}
	return changes
}

func equal(a, b any) bool {
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		// Unserializable values only ever compare equal to themselves.
		return errA == nil && errB == nil
	}
	return string(aJSON) == string(bJSON)
}
