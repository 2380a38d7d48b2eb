package patch

const (
	OperationAdd     = "add"
	OperationReplace = "replace"
)

// Operation is a single RFC6902 JSON Patch operation.
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}
