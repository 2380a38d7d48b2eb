package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// ApplyRFC6902 applies ops to current after checking them against
// allowedPaths. A nil or empty allowedPaths disables the path check.
func ApplyRFC6902[T any](current T, ops []Operation, allowedPaths map[string]bool) (T, error) {
	var zero T

	if len(ops) == 0 {
		return current, nil
	}
	if err := ValidatePatchOperations(ops, allowedPaths); err != nil {
		return zero, fmt.Errorf("invalid patch: %w", err)
	}

	doc, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal current state: %w", err)
	}
	patchJSON, err := json.Marshal(asAdd(ops))
	if err != nil {
		return zero, fmt.Errorf("failed to marshal patch operations: %w", err)
	}
	p, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return zero, fmt.Errorf("failed to decode patch: %w", err)
	}
	modified, err := p.Apply(doc)
	if err != nil {
		return zero, fmt.Errorf("failed to apply patch: %w", err)
	}

	var result T
	if err := json.Unmarshal(modified, &result); err != nil {
		return zero, fmt.Errorf("patch result does not fit %T: %w", result, err)
	}
	return result, nil
}

// asAdd rewrites replace as add. On an object member add sets the value
// whether or not the member exists.
func asAdd(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		op.Op = OperationAdd
		out[i] = op
	}
	return out
}
