package chat

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer strips markup from chat bodies with a bluemonday policy.
// Bodies are plain text, so the entities the policy escapes are decoded
// again before storage and fan-out; clients escape on render.
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer wraps policy, or bluemonday's strict policy when nil.
func NewTextSanitizer(policy *bluemonday.Policy) *TextSanitizer {
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}
	return &TextSanitizer{policy: policy}
}

func (s *TextSanitizer) Sanitize(body string) string {
	return html.UnescapeString(s.policy.Sanitize(body))
}
