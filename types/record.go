package types

// Record is the idea submission being collected.
type Record struct {
	Name       string `json:"name" jsonschema:"description=The user's full name"`
	Email      string `json:"email" jsonschema:"description=The user's email address"`
	ProfileURL string `json:"profileUrl" jsonschema:"description=The URL of the user's professional profile, e.g. LinkedIn"`
	Idea       string `json:"idea" jsonschema:"description=A detailed description of the user's AI agent idea"`
}

type Field string

const (
	FieldName       Field = "name"
	FieldEmail      Field = "email"
	FieldProfileURL Field = "profileUrl"
	FieldIdea       Field = "idea"
)

var fieldOrder = []Field{FieldName, FieldEmail, FieldProfileURL, FieldIdea}

var fieldDisplayNames = map[Field]string{
	FieldName:       "Name",
	FieldEmail:      "Email",
	FieldProfileURL: "Profile URL",
	FieldIdea:       "AI agent idea",
}

var fieldDescriptions = map[Field]string{
	FieldName:       "full name",
	FieldEmail:      "a valid email address, e.g. jane@example.com",
	FieldProfileURL: "an absolute profile URL, e.g. https://linkedin.com/in/jane",
	FieldIdea:       "a description of the AI agent idea",
}

// Fields returns the record fields in the order they are asked for.
func Fields() []Field {
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// FieldByPointer resolves a JSON pointer such as "/email".
func FieldByPointer(pointer string) (Field, bool) {
	for _, f := range fieldOrder {
		if f.JSONPointer() == pointer {
			return f, true
		}
	}
	return "", false
}

func (f Field) Valid() bool {
	_, ok := fieldDisplayNames[f]
	return ok
}

func (f Field) JSONPointer() string {
	return "/" + string(f)
}

func (f Field) DisplayName() string {
	return fieldDisplayNames[f]
}

func (f Field) Info() FieldInfo {
	return FieldInfo{
		JSONPointer: f.JSONPointer(),
		DisplayName: f.DisplayName(),
		Description: fieldDescriptions[f],
		Required:    true,
	}
}

// AllowedJSONPointers lists the only paths an update may touch.
func AllowedJSONPointers() []string {
	paths := make([]string, 0, len(fieldOrder))
	for _, f := range fieldOrder {
		paths = append(paths, f.JSONPointer())
	}
	return paths
}

func (r Record) Get(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldEmail:
		return r.Email
	case FieldProfileURL:
		return r.ProfileURL
	case FieldIdea:
		return r.Idea
	default:
		return ""
	}
}

// With returns a copy of r with f set to value.
func (r Record) With(f Field, value string) Record {
	switch f {
	case FieldName:
		r.Name = value
	case FieldEmail:
		r.Email = value
	case FieldProfileURL:
		r.ProfileURL = value
	case FieldIdea:
		r.Idea = value
	}
	return r
}

// Present returns the fields holding a non-empty value, in ask order.
func (r Record) Present() []Field {
	var out []Field
	for _, f := range fieldOrder {
		if r.Get(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

// Missing returns the fields still absent, in ask order.
func (r Record) Missing() []FieldInfo {
	var missing []FieldInfo
	for _, f := range fieldOrder {
		if r.Get(f) == "" {
			missing = append(missing, f.Info())
		}
	}
	return missing
}

func (r Record) Complete() bool {
	return len(r.Missing()) == 0
}

func (r Record) IsZero() bool {
	return r == Record{}
}

// Pick returns a record holding only the given fields of r.
func (r Record) Pick(fields ...Field) Record {
	var out Record
	for _, f := range fields {
		out = out.With(f, r.Get(f))
	}
	return out
}
