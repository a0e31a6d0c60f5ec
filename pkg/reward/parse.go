// Package reward scores free-form model answers against gold boxes for use
// as a one-shot reward function.
package reward

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	reNumber   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseBox extracts a box from an answer. A JSON array of exactly four
// numbers is preferred; otherwise the first four numeric tokens anywhere in
// the text are used. Coordinates are truncated to integers.
func ParseBox(answer string) (types.Box, bool) {
	text := sanitizeAnswer(answer)
	if text == "" {
		return types.Box{}, false
	}

	if b, ok := parseJSONBox(text); ok {
		return b, true
	}

	tokens := reNumber.FindAllString(text, 4)
	if len(tokens) < 4 {
		return types.Box{}, false
	}
	var v [4]int
	for i, tok := range tokens {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return types.Box{}, false
		}
		v[i] = int(f)
	}
	return types.NewBox(v), true
}

func parseJSONBox(text string) (types.Box, bool) {
	var vals []any
	if err := json.Unmarshal([]byte(text), &vals); err != nil || len(vals) != 4 {
		return types.Box{}, false
	}
	var v [4]int
	for i, x := range vals {
		f, ok := x.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return types.Box{}, false
		}
		v[i] = int(f)
	}
	return types.NewBox(v), true
}

// sanitizeAnswer removes code fences, comments and trailing commas that
// chat models like to wrap around structured output.
func sanitizeAnswer(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")
	return strings.TrimSpace(raw)
}

// FormatReward is 1 when the answer contains a well-formed box, else 0.
func FormatReward(answer string) float64 {
	if _, ok := ParseBox(answer); ok {
		return 1.0
	}
	return 0.0
}
