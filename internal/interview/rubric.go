package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/mockvox/internal/session"
)

// axisKeys lists the accepted JSON keys for each rubric axis, in Axes order.
var axisKeys = [session.AxisCount][]string{
	{"communication"},
	{"technical_depth", "technicalDepth", "technical"},
	{"problem_solving", "problemSolving"},
	{"clarity"},
	{"confidence"},
}

// errNoJSON is returned when the model output contains no JSON object.
var errNoJSON = errors.New("no JSON object in response")

// DefaultRubric returns the rubric used when the model output is unusable:
// every axis at the midpoint.
func DefaultRubric() session.Rubric {
	r := session.Rubric{
		Communication:  session.AxisMidpoint,
		TechnicalDepth: session.AxisMidpoint,
		ProblemSolving: session.AxisMidpoint,
		Clarity:        session.AxisMidpoint,
		Confidence:     session.AxisMidpoint,
		Tags:           []string{},
	}
	r.Total = total(r)
	return r
}

// ParseRubric extracts a rubric from model output. Each axis that is missing
// or not a number defaults to the midpoint; parsed axes are clamped into
// [AxisMin, AxisMax]. Total is always the sum of the five final axis values.
//
// It returns the number of axes that parsed. The error is non-nil only when no
// JSON object could be decoded at all, in which case the default rubric is
// returned.
func ParseRubric(content string) (session.Rubric, int, error) {
	obj, err := decodeObject(content)
	if err != nil {
		return DefaultRubric(), 0, err
	}
	// Some models nest the axes under "scores".
	scores := obj
	if raw, ok := obj["scores"]; ok {
		var nested map[string]json.RawMessage
		if json.Unmarshal(raw, &nested) == nil {
			scores = nested
		}
	}

	var vals [session.AxisCount]float64
	parsed := 0
	for i, keys := range axisKeys {
		vals[i] = session.AxisMidpoint
		for _, k := range keys {
			if v, ok := parseNumber(scores[k]); ok {
				vals[i] = clamp(v)
				parsed++
				break
			}
		}
	}

	r := session.Rubric{
		Communication:  vals[0],
		TechnicalDepth: vals[1],
		ProblemSolving: vals[2],
		Clarity:        vals[3],
		Confidence:     vals[4],
		Tags:           parseTags(obj["tags"]),
		Notes:          parseString(obj["notes"]),
	}
	r.Total = total(r)
	return r, parsed, nil
}

// decodeObject strips code fences and surrounding prose and decodes the
// outermost JSON object.
func decodeObject(content string) (map[string]json.RawMessage, error) {
	s := stripMarkdown(content)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode rubric: %w", err)
	}
	return obj, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// parseNumber accepts a JSON number or a numeric string ("7", "7.5", "7/10").
func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if before, _, ok := strings.Cut(s, "/"); ok {
		s = strings.TrimSpace(before)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseTags(raw json.RawMessage) []string {
	tags := []string{}
	if len(raw) == 0 {
		return tags
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return tags
		}
		list = strings.Split(s, ",")
	}
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func parseString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return session.AxisMidpoint
	case v < session.AxisMin:
		return session.AxisMin
	case v > session.AxisMax:
		return session.AxisMax
	default:
		return v
	}
}

func total(r session.Rubric) float64 {
	var sum float64
	for _, v := range r.Axes() {
		sum += v
	}
	return sum
}
