package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON unmarshals model output into T, tolerating the usual LLM quirks:
// markdown fences, prose before or after the object, stray whitespace. The
// parse window is the first '{' through the last '}'.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	start := strings.IndexByte(response, '{')
	if start == -1 {
		return zero, fmt.Errorf("no JSON object found in model response")
	}
	end := strings.LastIndexByte(response, '}')
	if end < start {
		return zero, fmt.Errorf("unterminated JSON object in model response")
	}
	jsonStr := response[start : end+1]

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("malformed JSON in model response: %w", err)
	}
	return result, nil
}
