// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// jsonObjectRegex extracts a JSON object if the response is wrapped in markdown.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array if the response is wrapped in markdown.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ExtractJSON isolates the JSON document in a model response. It handles
// markdown fences and JSON embedded in conversational text. If nothing that
// looks like JSON is found, the trimmed response is returned unchanged.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
		return response
	}

	if (isObject || isArray) && !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		if isObject {
			fb := strings.Index(response, "{")
			lb := strings.LastIndex(response, "}")
			if fb != -1 && lb > fb {
				return response[fb : lb+1]
			}
		}
		if isArray {
			fb := strings.Index(response, "[")
			lb := strings.LastIndex(response, "]")
			if fb != -1 && lb > fb {
				return response[fb : lb+1]
			}
		}
	}
	return response
}

// ParseJSONResponse parses a model response into T. When the extracted JSON
// is malformed (trailing commas, single quotes, truncation) one repair pass
// is attempted before giving up.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, err := RepairJSON(response)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(raw, 500))
	}
	return &result, nil
}

// ParseJSONObject parses a model response into a generic object, preserving
// every field the model emitted.
func ParseJSONObject(response string) (map[string]interface{}, error) {
	out, err := ParseJSONResponse[map[string]interface{}](response)
	if err != nil {
		return nil, err
	}
	if *out == nil {
		return nil, fmt.Errorf("LLM response is not a JSON object")
	}
	return *out, nil
}

// RepairJSON extracts the JSON document from a response and returns it in a
// syntactically valid form.
func RepairJSON(response string) (string, error) {
	extracted := ExtractJSON(response)
	if extracted == "" {
		return "", fmt.Errorf("LLM response is empty")
	}
	if json.Valid([]byte(extracted)) {
		return extracted, nil
	}

	repaired, err := jsonrepair.JSONRepair(extracted)
	if err != nil {
		return "", fmt.Errorf("LLM response is not valid JSON and could not be repaired: %w. Extracted JSON (truncated): %s", err, truncateString(extracted, 500))
	}
	return repaired, nil
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Byte truncation is fine for error messages.
	return s[:maxLen] + "..."
}
