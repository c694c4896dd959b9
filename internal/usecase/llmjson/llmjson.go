// Package llmjson decodes structured replies from language models:
// strip markdown fences, parse, validate against a JSON Schema, then bind
// to a Go value.
package llmjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"helpdesk-ai/internal/domain"
)

// Schema is a compiled JSON Schema.
type Schema = jsonschema.Schema

// MustCompile compiles a schema literal and panics on error. Use it for
// package-level schema variables.
func MustCompile(schema string) *Schema {
	s, err := jsonschema.NewCompiler().Compile([]byte(schema))
	if err != nil {
		panic(fmt.Sprintf("llmjson: compile schema: %v", err))
	}
	return s
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// StripCodeFences removes a markdown code fence around s, if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractObject returns the outermost {...} span when the model wrapped
// the object in prose.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// Decode parses raw into out after validating it against schema. Every
// failure wraps domain.ErrLLMOutput.
func Decode(raw string, schema *Schema, out any) error {
	body := StripCodeFences(raw)
	if body == "" {
		return fmt.Errorf("%w: empty reply", domain.ErrLLMOutput)
	}

	var generic any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		body = extractObject(body)
		if err := json.Unmarshal([]byte(body), &generic); err != nil {
			return fmt.Errorf("%w: invalid JSON: %v", domain.ErrLLMOutput, err)
		}
	}

	if schema != nil {
		if res := schema.Validate(generic); !res.IsValid() {
			return fmt.Errorf("%w: schema mismatch: %s", domain.ErrLLMOutput, res.Error())
		}
	}

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: bind: %v", domain.ErrLLMOutput, err)
	}
	return nil
}
