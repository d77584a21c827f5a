package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"pest-diagnosis-service/models"
	"pest-diagnosis-service/prompts"

	"golang.org/x/text/unicode/norm"
)

// DefaultInvalidMarkers are matched when no markers are configured.
var DefaultInvalidMarkers = []string{prompts.InvalidImageMarker}

// ExtractJSON returns the JSON object inside a markdown code fence or surrounding prose.
// Input without any object is returned unchanged.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	startIdx := strings.Index(response, "```")
	if startIdx == -1 {
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx < startIdx {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	rest := response[startIdx+3:]
	endIdx := strings.Index(rest, "```")
	if endIdx == -1 {
		return response
	}
	content := strings.TrimSpace(rest[:endIdx])

	// Drop the language tag ("json") on the fence line.
	if first, body, ok := strings.Cut(content, "\n"); ok && !strings.ContainsAny(first, "{[") {
		content = body
	}
	return strings.TrimSpace(content)
}

// ParseDiagnosis parses a text-diagnosis answer. Ordering and probability-sum are not checked here.
func ParseDiagnosis(raw string) (*models.DiagnosisResult, error) {
	var result models.DiagnosisResult
	if err := decode(raw, prompts.KindTextDiagnosis, prompts.DiagnosisSchema(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseImplementationPlan parses a plan answer. Steps come back sorted by day and must be
// numbered 1..N without gaps, each dated YYYY-MM-DD.
func ParseImplementationPlan(raw string) (*models.ImplementationPlan, error) {
	kind := prompts.KindImplementationPlan

	var plan models.ImplementationPlan
	if err := decode(raw, kind, prompts.PlanSchema(), &plan); err != nil {
		return nil, err
	}
	if len(plan.Steps) == 0 {
		return nil, malformed(kind, "plan has no steps", nil)
	}

	sort.SliceStable(plan.Steps, func(i, j int) bool { return plan.Steps[i].Day < plan.Steps[j].Day })
	for i, step := range plan.Steps {
		if step.Day != i+1 {
			return nil, malformed(kind, fmt.Sprintf("steps must be numbered 1..%d without gaps, found day %d at position %d", len(plan.Steps), step.Day, i+1), nil)
		}
		if _, err := time.Parse(prompts.DateLayout, step.Date); err != nil {
			return nil, malformed(kind, fmt.Sprintf("step %d date %q is not YYYY-MM-DD", step.Day, step.Date), err)
		}
	}
	return &plan, nil
}

// InterpretImageResponse classifies the image-stage answer. A blank answer or one containing
// any marker (case-insensitive substring) yields the invalid-input result; otherwise the
// trimmed text is the symptom description to chain into text diagnosis.
//
// Marker matching is a heuristic over free text, not a protocol.
func InterpretImageResponse(raw, cropType string, markers []string) (string, *models.DiagnosisResult) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", InvalidInputResult(cropType, prompts.InvalidImageMessage)
	}
	if len(markers) == 0 {
		markers = DefaultInvalidMarkers
	}

	folded := strings.ToLower(norm.NFC.String(text))
	for _, m := range markers {
		m = strings.ToLower(norm.NFC.String(strings.TrimSpace(m)))
		if m != "" && strings.Contains(folded, m) {
			return "", InvalidInputResult(cropType, text)
		}
	}
	return text, nil
}

// InvalidInputResult is the terminal "image does not match the crop" outcome.
func InvalidInputResult(cropType, message string) *models.DiagnosisResult {
	return &models.DiagnosisResult{
		CropType:                cropType,
		CropSymptom:             message,
		PossiblePestsOrDiseases: []models.PestOrDisease{},
		AdditionalInfo:          prompts.NoInformation,
	}
}

func decode(raw string, kind prompts.Kind, schema *prompts.Schema, out any) error {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return malformed(kind, "empty response", nil)
	}

	var generic any
	if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
		return malformed(kind, "invalid JSON", err)
	}
	if err := Check(schema, generic); err != nil {
		return malformed(kind, "schema violation", err)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return malformed(kind, "cannot decode into result", err)
	}
	return nil
}

// Check validates a decoded JSON value against schema: required fields present and non-null,
// JSON types matching, numeric bounds respected. Unknown fields are ignored.
func Check(schema *prompts.Schema, v any) error {
	return check(schema, v, "$")
}

func check(s *prompts.Schema, v any, path string) error {
	if s == nil {
		return nil
	}

	switch s.Type {
	case prompts.TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", path)
		}
		for _, name := range s.Required {
			if val, present := obj[name]; !present || val == nil {
				return fmt.Errorf("%s.%s: missing required field", path, name)
			}
		}
		for name, prop := range s.Properties {
			val, present := obj[name]
			if !present || val == nil {
				continue
			}
			if err := check(prop, val, path+"."+name); err != nil {
				return err
			}
		}
	case prompts.TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}
		for i, item := range arr {
			if item == nil {
				return fmt.Errorf("%s[%d]: null item", path, i)
			}
			if err := check(s.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case prompts.TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s: expected string", path)
		}
	case prompts.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}
	case prompts.TypeNumber, prompts.TypeInteger:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("%s: expected number", path)
		}
		if s.Type == prompts.TypeInteger && f != math.Trunc(f) {
			return fmt.Errorf("%s: expected integer, got %v", path, f)
		}
		if s.Minimum != nil && f < *s.Minimum {
			return fmt.Errorf("%s: %v is below minimum %v", path, f, *s.Minimum)
		}
		if s.Maximum != nil && f > *s.Maximum {
			return fmt.Errorf("%s: %v is above maximum %v", path, f, *s.Maximum)
		}
	}
	return nil
}
