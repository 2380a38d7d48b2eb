package intent

import (
	"context"
	"strings"
	"unicode"
)

// LocalRecognizer matches keyword phrases on word boundaries. Decline
// phrases are taken out first so "not correct" does not read as "correct".
// An answer that also carries a value or a hedge ("but", "except", an
// address) is None and left to the engine.
type LocalRecognizer struct {
	AffirmKeywords  []string
	DeclineKeywords []string
	HedgeKeywords   []string
}

func NewLocalRecognizer() *LocalRecognizer {
	return &LocalRecognizer{
		AffirmKeywords: []string{
			"yes", "y", "yep", "yeah", "yup", "sure", "ok", "okay", "correct",
			"looks good", "look good", "all good", "looks correct", "looks right",
			"that is correct", "thats correct", "that's correct", "its correct", "it's correct",
			"perfect", "great", "good", "fine", "confirm", "confirmed", "right",
			"submit", "go ahead", "ready", "lgtm", "absolutely", "definitely", "exactly",
		},
		DeclineKeywords: []string{
			"no", "n", "nope", "nah", "not yet", "wait", "hold on", "incorrect",
			"not correct", "not right", "not quite", "not good", "that's wrong", "thats wrong",
			"wrong", "change", "edit", "modify", "fix", "update", "not ready", "don't", "dont",
			"do not", "stop", "cancel",
		},
		HedgeKeywords: []string{
			"but", "except", "however", "although", "instead", "actually", "should be",
			"my name", "my email", "my profile", "my linkedin", "my idea", "my url",
		},
	}
}

func (p *LocalRecognizer) Recognize(ctx context.Context, req *Request) (Intent, error) {
	if req == nil {
		return None, nil
	}
	if carriesValue(req.Answer) {
		return None, nil
	}
	answer := normalize(req.Answer)
	if answer == "" {
		return None, nil
	}
	padded := " " + answer + " "
	declined := false
	for _, keyword := range p.DeclineKeywords {
		phrase := " " + keyword + " "
		if strings.Contains(padded, phrase) {
			declined = true
			padded = strings.ReplaceAll(padded, phrase, " ")
		}
	}
	affirmed := containsAny(padded, p.AffirmKeywords)
	switch {
	case containsAny(" "+answer+" ", p.HedgeKeywords):
		return None, nil
	case declined && !affirmed:
		return Decline, nil
	case affirmed && !declined:
		return Affirm, nil
	}
	return None, nil
}

func containsAny(padded string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// carriesValue reports whether the answer holds something that looks like a
// field value rather than a reply to the question.
func carriesValue(answer string) bool {
	lower := strings.ToLower(answer)
	return strings.Contains(lower, "@") || strings.Contains(lower, "://") || strings.Contains(lower, "www.")
}

// normalize lowercases, turns punctuation other than apostrophes into spaces
// and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "’", "'"))
	s = strings.Map(func(r rune) rune {
		if r == '\'' {
			return r
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// FailbackRecognizer returns the first result that does not fail.
type FailbackRecognizer struct {
	recognizers []Recognizer
}

func NewFailbackRecognizer(recognizers ...Recognizer) *FailbackRecognizer {
	return &FailbackRecognizer{recognizers: recognizers}
}

func (p *FailbackRecognizer) Recognize(ctx context.Context, req *Request) (Intent, error) {
	var lastErr error
	for _, r := range p.recognizers {
		it, err := r.Recognize(ctx, req)
		if err == nil {
			return it, nil
		}
		lastErr = err
	}
	return None, lastErr
}
