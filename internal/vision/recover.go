package vision

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Conservative defaults used when a field cannot be recovered from the model
// reply. Placeholder values are deliberately low-signal; degradation is
// reported through Recovered and Confidence, never invented precision.
const (
	fallbackDescription = "Unidentified meal"
	defaultCalories     = 100
	defaultConfidence   = 40
	fallbackConfidence  = 10
)

// Recover converts raw model text into a valid AnalysisResult. Strategies
// are tried in order, first success wins:
//
//  1. strict parse of the embedded JSON object
//  2. structural repair of truncated JSON, then strict parse
//  3. permissive per-field extraction
//  4. conservative fallback record
//
// Recover is pure and never fails: every input yields a record with
// non-negative calories, confidence in [0,100], and a non-empty description.
func Recover(raw string) *AnalysisResult {
	cleaned := sanitize(raw)

	if result, err := strictParse(cleaned); err == nil {
		return result
	}

	if repaired, ok := completeJSON(cleaned); ok {
		if result, err := strictParse(repaired); err == nil {
			return result
		}
	}

	if result, ok := extractFields(raw); ok {
		return result
	}

	return &AnalysisResult{
		Description:    fallbackDescription,
		Calories:       defaultCalories,
		Confidence:     fallbackConfidence,
		HealthCategory: HealthUnknown,
		Notes:          "Automatic analysis could not read the model reply",
		Recovered:      true,
	}
}

// rawResult is the permissive schema the model reply is unmarshalled into.
// Loosely-typed fields arrive as RawMessage and go through an explicit
// coercion step rather than an implicit cast.
type rawResult struct {
	Description    json.RawMessage `json:"description"`
	FoodItems      []rawItem       `json:"food_items"`
	TotalCalories  json.RawMessage `json:"total_calories"`
	Calories       json.RawMessage `json:"calories"`
	Protein        json.RawMessage `json:"protein_g"`
	Carbs          json.RawMessage `json:"carbs_g"`
	Fat            json.RawMessage `json:"fat_g"`
	Confidence     json.RawMessage `json:"confidence"`
	HealthCategory string          `json:"health_category"`
	Notes          string          `json:"notes"`
}

type rawItem struct {
	Name     string          `json:"name"`
	Portion  string          `json:"portion"`
	Calories json.RawMessage `json:"calories"`
}

type parseError string

func (e parseError) Error() string { return string(e) }

// strictParse unmarshals pre-sanitized text and validates the required
// fields. A reply without a description and a calorie figure is not a parse
// success; later strategies take over.
func strictParse(s string) (*AnalysisResult, error) {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil, parseError("no JSON object found")
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, err
	}

	description := asString(parsed.Description)
	calories, haveCalories := asNumber(parsed.TotalCalories)
	if !haveCalories {
		calories, haveCalories = asNumber(parsed.Calories)
	}
	if description == "" || !haveCalories {
		return nil, parseError("required fields missing")
	}

	confidence, haveConfidence := asNumber(parsed.Confidence)
	if !haveConfidence {
		confidence = defaultConfidence
	}

	result := &AnalysisResult{
		Description:    description,
		Calories:       clampCalories(calories),
		Protein:        optionalNumber(parsed.Protein),
		Carbs:          optionalNumber(parsed.Carbs),
		Fat:            optionalNumber(parsed.Fat),
		Confidence:     clampConfidence(confidence),
		HealthCategory: normalizeHealth(parsed.HealthCategory),
		Notes:          parsed.Notes,
	}

	for _, item := range parsed.FoodItems {
		if item.Name == "" {
			continue
		}
		cal, _ := asNumber(item.Calories)
		result.Items = append(result.Items, FoodItem{
			Name:     item.Name,
			Portion:  item.Portion,
			Calories: clampCalories(cal),
		})
	}

	return result, nil
}

// sanitize strips markdown fences and surrounding prose, keeping the JSON
// object. When the object was truncated before its closing brace, the slice
// runs to the end of the text so structural repair can complete it.
func sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
		raw = strings.TrimSpace(strings.Trim(raw, "`"))
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return raw
	}
	if end := strings.LastIndex(raw, "}"); end > start {
		raw = raw[start : end+1]
	} else {
		raw = raw[start:]
	}

	// Trailing commas before a closer are a common model artifact.
	return trailingComma.ReplaceAllString(raw, "$1")
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// completeJSON appends the minimal closing sequence to a truncated JSON
// object: a quote first when the cut happened inside a string literal, then
// the unmatched brackets and braces in reverse order of opening. It reports
// false when the text is not an incomplete object.
func completeJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return "", false
	}

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	// A dangling comma or colon before the closers would re-break the JSON.
	closed := strings.TrimRight(b.String(), " \t\r\n")
	closed = strings.TrimRight(closed, ",:")

	b.Reset()
	b.WriteString(closed)
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

var (
	descPattern       = regexp.MustCompile(`"description"\s*:\s*"([^"]+)`)
	caloriesPattern   = regexp.MustCompile(`"(?:total_)?calories"\s*:\s*"?(-?\d+(?:\.\d+)?)`)
	confidencePattern = regexp.MustCompile(`"confidence"\s*:\s*"?(\d+(?:\.\d+)?)`)
	healthPattern     = regexp.MustCompile(`(?i)"health_category"\s*:\s*"?(healthy|moderate|junk)`)
	proteinPattern    = regexp.MustCompile(`"protein(?:_g)?"\s*:\s*"?(-?\d+(?:\.\d+)?)`)
	carbsPattern      = regexp.MustCompile(`"carbs(?:_g)?"\s*:\s*"?(-?\d+(?:\.\d+)?)`)
	fatPattern        = regexp.MustCompile(`"fat(?:_g)?"\s*:\s*"?(-?\d+(?:\.\d+)?)`)
)

// extractFields scans the unparsed text for each field independently and
// assembles a best-effort record. It reports false when no usable signal was
// found at all.
func extractFields(raw string) (*AnalysisResult, bool) {
	result := &AnalysisResult{
		Description:    fallbackDescription,
		Calories:       defaultCalories,
		Confidence:     defaultConfidence,
		HealthCategory: HealthUnknown,
		Notes:          "Analysis completed with partial data due to response formatting",
		Recovered:      true,
	}

	found := false
	if m := descPattern.FindStringSubmatch(raw); m != nil {
		result.Description = strings.TrimSpace(m[1])
		found = true
	}
	if m := caloriesPattern.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.Calories = clampCalories(v)
			found = true
		}
	}
	if m := confidencePattern.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.Confidence = clampConfidence(v)
			found = true
		}
	}
	if m := healthPattern.FindStringSubmatch(raw); m != nil {
		result.HealthCategory = normalizeHealth(m[1])
	}
	if m := proteinPattern.FindStringSubmatch(raw); m != nil {
		result.Protein = parseOptional(m[1])
	}
	if m := carbsPattern.FindStringSubmatch(raw); m != nil {
		result.Carbs = parseOptional(m[1])
	}
	if m := fatPattern.FindStringSubmatch(raw); m != nil {
		result.Fat = parseOptional(m[1])
	}

	return result, found
}

var numberRun = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// asNumber coerces a loosely-typed JSON value to a number. Descriptive
// strings such as "450 kcal" or "approximately 300" reduce to their first
// valid numeric run.
func asNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if m := numberRun.FindString(s); m != "" {
			if v, err := strconv.ParseFloat(m, 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// asString coerces a value that may arrive as a string or a list of food
// names into a single description string.
func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				parts = append(parts, item)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func optionalNumber(raw json.RawMessage) *float64 {
	if v, ok := asNumber(raw); ok {
		if v < 0 {
			v = 0
		}
		return &v
	}
	return nil
}

func parseOptional(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func clampCalories(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clampConfidence(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v)
	}
}

func normalizeHealth(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case HealthHealthy:
		return HealthHealthy
	case HealthModerate:
		return HealthModerate
	case HealthJunk:
		return HealthJunk
	default:
		return HealthUnknown
	}
}
