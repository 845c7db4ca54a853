package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
)

// reply is the JSON object the prompt asks the model to return.
type reply struct {
	Attributes map[string]any  `json:"attributes"`
	Category   string          `json:"category"`
	Slug       string          `json:"slug"`
	Reasoning  string          `json:"reasoning"`
	Confidence json.RawMessage `json:"confidence"`
}

// parsedReply is a reply with its confidence resolved to [0, 1].
type parsedReply struct {
	Attributes map[string]string
	Slug       string
	Reasoning  string
	Confidence float64
}

// parseReply extracts the first JSON object from content and decodes it.
// Markdown fences and surrounding prose are ignored.
func parseReply(content string) (parsedReply, error) {
	obj, ok := firstJSONObject(cleanMarkdownWrapper(content))
	if !ok {
		return parsedReply{}, fmt.Errorf("%w: no JSON object found", common.ErrLLMResponse)
	}

	var r reply
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return parsedReply{}, fmt.Errorf("%w: %w", common.ErrLLMResponse, err)
	}

	slug := strings.TrimSpace(r.Category)
	if slug == "" {
		slug = strings.TrimSpace(r.Slug)
	}
	if slug == "" {
		return parsedReply{}, fmt.Errorf("%w: no category in response", common.ErrLLMResponse)
	}

	conf, err := parseConfidence(r.Confidence)
	if err != nil {
		return parsedReply{}, err
	}

	return parsedReply{
		Slug:       strings.ToLower(slug),
		Confidence: conf,
		Reasoning:  strings.TrimSpace(r.Reasoning),
		Attributes: stringifyAttributes(r.Attributes),
	}, nil
}

// cleanMarkdownWrapper removes a ```json ... ``` fence around content.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "```")
	if start < 0 {
		return content
	}
	inner := content[start+3:]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], "{}") {
		inner = inner[nl+1:]
	}
	if end := strings.Index(inner, "```"); end >= 0 {
		inner = inner[:end]
	}
	return strings.TrimSpace(inner)
}

// firstJSONObject returns the first balanced {...} in s. Braces inside JSON
// strings are skipped.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parseConfidence accepts 0.85, "0.85", 85, "85" and "85%".
// Values above 1 are read as percentages.
func parseConfidence(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	text := string(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = s
	}
	text = strings.TrimSpace(text)

	percent := strings.HasSuffix(text, "%")
	text = strings.TrimSpace(strings.TrimSuffix(text, "%"))

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid confidence %q", common.ErrLLMResponse, string(raw))
	}
	if percent || v > 1 {
		v /= 100
	}
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	return v, nil
}

func stringifyAttributes(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
