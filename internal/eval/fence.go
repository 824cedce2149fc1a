package eval

import (
	"strings"

	"github.com/segmentio/encoding/json"
)

// StripFence removes a leading/trailing markdown code fence from raw, if
// present. The opening fence may carry a language tag (```json). Content
// without a fence is returned trimmed but otherwise untouched.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the opening fence line, language tag included.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeFencedJSON strips an optional code fence from raw and decodes the
// remainder into v. A decode error means the payload was malformed, which is
// distinct from a well-formed payload that happens to be empty; callers
// applying a fail-open policy branch on the error, not on emptiness.
func DecodeFencedJSON(raw string, v any) error {
	return json.Unmarshal([]byte(StripFence(raw)), v)
}
