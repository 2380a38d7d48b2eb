package validate

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tbxark/formcopilot/types"
)

var (
	ErrEmpty        = errors.New("value is empty")
	ErrUnknownField = errors.New("unknown field")
)

// Result splits a proposed update into the normalized values that may be
// committed and the values that were rejected.
type Result struct {
	Accepted types.Record
	Fields   []types.Field
	Rejected []types.FieldInfo
}

// Validator normalizes and checks record values before they are committed.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Normalize returns the canonical form of raw for field f, or an error if the
// value must not be committed.
func (v *Validator) Normalize(f types.Field, raw string) (string, error) {
	switch f {
	case types.FieldName:
		return normalizeName(raw)
	case types.FieldEmail:
		return normalizeEmail(raw)
	case types.FieldProfileURL:
		return normalizeURL(raw)
	case types.FieldIdea:
		return normalizeIdea(raw)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
}

// Apply validates every present value. Fields not in values are left out of
// the result entirely so callers can merge partially.
func (v *Validator) Apply(values map[types.Field]string) Result {
	var res Result
	for _, f := range types.Fields() {
		raw, ok := values[f]
		if !ok {
			continue
		}
		normalized, err := v.Normalize(f, raw)
		if err != nil {
			info := f.Info()
			info.Description = err.Error()
			res.Rejected = append(res.Rejected, info)
			continue
		}
		res.Accepted = res.Accepted.With(f, normalized)
		res.Fields = append(res.Fields, f)
	}
	for f := range values {
		if !f.Valid() {
			res.Rejected = append(res.Rejected, types.FieldInfo{
				JSONPointer: "/" + string(f),
				Description: ErrUnknownField.Error(),
			})
		}
	}
	return res
}

// Check re-validates every present field of r. A value is reported when it
// is invalid or not already in canonical form.
func (v *Validator) Check(r types.Record) []types.FieldInfo {
	var issues []types.FieldInfo
	for _, f := range r.Present() {
		value := r.Get(f)
		normalized, err := v.Normalize(f, value)
		if err == nil && normalized == value {
			continue
		}
		info := f.Info()
		if err != nil {
			info.Description = err.Error()
		} else {
			info.Description = "value is not normalized"
		}
		issues = append(issues, info)
	}
	return issues
}

func normalizeName(raw string) (string, error) {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return "", ErrEmpty
	}
	for i, tok := range tokens {
		tokens[i] = titleToken(tok)
	}
	return strings.Join(tokens, " "), nil
}

func titleToken(tok string) string {
	first, size := utf8.DecodeRuneInString(tok)
	if first == utf8.RuneError {
		return tok
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(tok[size:])
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrEmpty
	}
	if strings.IndexFunc(email, unicode.IsSpace) >= 0 {
		return "", errors.New("email must not contain spaces")
	}
	if strings.Count(email, "@") != 1 {
		return "", errors.New("email must contain exactly one @")
	}
	local, domain, _ := strings.Cut(email, "@")
	if local == "" {
		return "", errors.New("email is missing the part before @")
	}
	dot := strings.LastIndex(domain, ".")
	if dot < 0 {
		return "", errors.New("email domain must contain a dot, e.g. example.com")
	}
	if dot == len(domain)-1 {
		return "", errors.New("email domain is missing a suffix after the dot")
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return "", errors.New("email domain has an empty label")
		}
	}
	return email, nil
}

func normalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", errors.New("url must not contain spaces")
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || !u.IsAbs() {
		return "", errors.New("url must be absolute, e.g. https://linkedin.com/in/jane")
	}
	if u.Host == "" {
		return "", errors.New("url is missing a host")
	}
	return s, nil
}

func normalizeIdea(raw string) (string, error) {
	idea := strings.TrimSpace(raw)
	if idea == "" {
		return "", ErrEmpty
	}
	return idea, nil
}
