package eval_test

import (
	"testing"

	"github.com/brandalign/engine/internal/eval"
)

func TestStripFence(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  ```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
		{"single-line fence", "```{\"a\": 1}```", `{"a": 1}`},
		{"empty fence", "```json\n```", ""},
		{"empty input", "", ""},
	}

	for _, tc := range cases {
		if got := eval.StripFence(tc.input); got != tc.expected {
			t.Errorf("%s: StripFence(%q) = %q, want %q", tc.name, tc.input, got, tc.expected)
		}
	}
}

func TestDecodeFencedJSON(t *testing.T) {
	var v struct {
		RelevantCriterionIDs []string `json:"relevant_criterion_ids"`
	}

	raw := "```json\n{\"relevant_criterion_ids\": [\"c1\", \"c2\"]}\n```"
	if err := eval.DecodeFencedJSON(raw, &v); err != nil {
		t.Fatalf("DecodeFencedJSON: %v", err)
	}
	if len(v.RelevantCriterionIDs) != 2 || v.RelevantCriterionIDs[0] != "c1" {
		t.Errorf("decoded %v", v.RelevantCriterionIDs)
	}
}

func TestDecodeFencedJSON_MalformedIsError(t *testing.T) {
	var v map[string]any
	if err := eval.DecodeFencedJSON("Not JSON", &v); err == nil {
		t.Error("expected error for malformed payload")
	}
	// Well-formed but empty is not an error.
	if err := eval.DecodeFencedJSON("{}", &v); err != nil {
		t.Errorf("empty object should decode: %v", err)
	}
}
