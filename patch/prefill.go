package patch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// Diff returns the operations that move current towards proposed. Both values
// must encode as flat JSON objects of strings. Empty proposed values are
// skipped, so fields absent from an update are never cleared, and values
// equal to current produce no operation.
func Diff[T any](current, proposed T) ([]Operation, error) {
	from, err := stringFields(current)
	if err != nil {
		return nil, fmt.Errorf("failed to read current state: %w", err)
	}
	to, err := stringFields(proposed)
	if err != nil {
		return nil, fmt.Errorf("failed to read proposed state: %w", err)
	}

	keys := make([]string, 0, len(to))
	for key := range to {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ops := make([]Operation, 0)
	for _, key := range keys {
		value := to[key]
		if value == "" {
			continue
		}
		path := "/" + pointerEscaper.Replace(key)
		old, ok := from[key]
		switch {
		case !ok:
			ops = append(ops, Operation{Op: OperationAdd, Path: path, Value: value})
		case old != value:
			ops = append(ops, Operation{Op: OperationReplace, Path: path, Value: value})
		}
	}
	return ops, nil
}

func stringFields(v any) (map[string]string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ChangedPaths lists the paths touched by ops, in order.
func ChangedPaths(ops []Operation) []string {
	paths := make([]string, 0, len(ops))
	for _, op := range ops {
		paths = append(paths, op.Path)
	}
	return paths
}
