package patch

import (
	"fmt"
)

// ValidatePatchOperations checks that every operation is an add or replace
// of a string value on an allowed path.
func ValidatePatchOperations(ops []Operation, allowedPaths map[string]bool) error {
	if len(ops) == 0 {
		return nil
	}
	for i, op := range ops {
		if op.Op != OperationAdd && op.Op != OperationReplace {
			return fmt.Errorf("operation %d: op %q is not permitted", i, op.Op)
		}
		if err := validatePathAllowed(op.Path, allowedPaths); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		if _, ok := op.Value.(string); !ok {
			return fmt.Errorf("operation %d: value for %q must be a string", i, op.Path)
		}
	}
	return nil
}

func validatePathAllowed(path string, allowedPaths map[string]bool) error {
	if len(allowedPaths) == 0 {
		return nil
	}
	if allowedPaths[path] {
		return nil
	}
	return fmt.Errorf("path %q is not in the allowed paths set", path)
}

// AllowedSet turns a path list into the lookup map ValidatePatchOperations takes.
func AllowedSet(paths []string) map[string]bool {
	allowed := make(map[string]bool, len(paths))
	for _, p := range paths {
		allowed[p] = true
	}
	return allowed
}
