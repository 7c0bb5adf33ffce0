package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

// #region fence

// StripFence removes a surrounding Markdown code fence whose tag is empty,
// json or javascript. Any other text is returned trimmed but unchanged.
func StripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return text
	}
	tag := strings.ToLower(strings.TrimSpace(text[3:nl]))
	if tag != "" && tag != "json" && tag != "javascript" {
		return text
	}
	closing := strings.LastIndex(text, "```")
	if closing <= nl {
		return text
	}
	return strings.TrimSpace(text[nl+1 : closing])
}

// #endregion fence

// #region decode

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// decodeObject decodes strictly, then once more after the heuristic repair.
func decodeObject(text string) (map[string]any, error) {
	obj, err := strictDecode(text)
	if err == nil {
		return obj, nil
	}
	repaired, rerr := strictDecode(repair(text))
	if rerr != nil {
		return nil, err
	}
	return repaired, nil
}

// repair cuts to the first opening brace, closes a missing final brace and
// drops trailing commas before a closing bracket or brace.
func repair(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		if i := strings.IndexByte(text, '{'); i >= 0 {
			text = text[i:]
		}
	}
	if !strings.HasSuffix(text, "}") {
		text += "}"
	}
	return trailingComma.ReplaceAllString(text, "$1")
}

func strictDecode(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	if rest := strings.TrimSpace(text[dec.InputOffset():]); rest != "" {
		return nil, errTrailingData
	}
	return obj, nil
}

// #endregion decode
