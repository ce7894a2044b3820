// Package analysis turns untrusted collaborator output into validated results
// and builds the prompts sent to the collaborator.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/kaushal/internal/domain/model"
)

// Score and confidence bounds.
const (
	MinScore      = 0.0
	MaxScore      = 100.0
	MinConfidence = 0.0
	MaxConfidence = 1.0

	defaultFeedback            = "Analysis completed"
	defaultIntegrityConfidence = 0.8
	failureMessage             = "AI analysis failed"
)

// Metric is one measurement reported by the collaborator.
type Metric struct {
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// FormAnalysis summarises technique.
type FormAnalysis struct {
	OverallForm  float64  `json:"overallForm"`
	Improvements []string `json:"improvements"`
	Strengths    []string `json:"strengths"`
}

// Result is a validated analysis. Every numeric field is within its range
// and every list is non-nil.
type Result struct {
	PerformanceScore  float64      `json:"performanceScore"`
	Metrics           []Metric     `json:"metrics"`
	Feedback          string       `json:"feedback"`
	FormAnalysis      FormAnalysis `json:"formAnalysis"`
	DetectedMovements []string     `json:"detectedMovements"`
	RiskFactors       []string     `json:"riskFactors"`
}

// IntegrityReport is the validated outcome of the manipulation pre-check.
type IntegrityReport struct {
	IsValid    bool     `json:"isValid"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues"`
}

// Failure is stored as aiAnalysisResults of a failed assessment.
type Failure struct {
	Error   string              `json:"error"`
	Reason  model.FailureReason `json:"reason"`
	Details string              `json:"details,omitempty"`
	Issues  []string            `json:"issues,omitempty"`
}

// NewFailure builds the failure payload for reason.
func NewFailure(reason model.FailureReason, details string, issues []string) Failure {
	return Failure{Error: failureMessage, Reason: reason, Details: details, Issues: issues}
}

// ModelMetrics converts result metrics to persistence rows for assessmentID.
func (r *Result) ModelMetrics(assessmentID string) []model.PerformanceMetric {
	out := make([]model.PerformanceMetric, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		out = append(out, model.PerformanceMetric{
			AssessmentID: assessmentID,
			Name:         m.Name,
			Value:        m.Value,
			Unit:         m.Unit,
			Confidence:   m.Confidence,
		})
	}
	return out
}

// ParseResult validates a raw analysis response. Absent or mistyped fields
// take their defaults; only content that is not a JSON object is rejected.
func ParseResult(raw []byte) (Result, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Feedback:          defaultFeedback,
		Metrics:           []Metric{},
		DetectedMovements: stringList(obj["detectedMovements"]),
		RiskFactors:       stringList(obj["riskFactors"]),
	}

	if v, ok := number(obj["performanceScore"]); ok {
		res.PerformanceScore = Clamp(v, MinScore, MaxScore)
	}
	if s, ok := obj["feedback"].(string); ok && strings.TrimSpace(s) != "" {
		res.Feedback = s
	}

	form, _ := obj["formAnalysis"].(map[string]any)
	if v, ok := number(form["overallForm"]); ok {
		res.FormAnalysis.OverallForm = Clamp(v, MinScore, MaxScore)
	}
	res.FormAnalysis.Improvements = stringList(form["improvements"])
	res.FormAnalysis.Strengths = stringList(form["strengths"])

	items, _ := obj["metrics"].([]any)
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value, ok := number(m["value"])
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		unit, _ := m["unit"].(string)
		conf, _ := number(m["confidence"])
		res.Metrics = append(res.Metrics, Metric{
			Name:       name,
			Value:      value,
			Unit:       strings.TrimSpace(unit),
			Confidence: Clamp(conf, MinConfidence, MaxConfidence),
		})
	}

	return res, nil
}

// ParseIntegrity validates a raw integrity response.
func ParseIntegrity(raw []byte) (IntegrityReport, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return IntegrityReport{}, err
	}

	rep := IntegrityReport{
		IsValid:    true,
		Confidence: defaultIntegrityConfidence,
		Issues:     stringList(obj["issues"]),
	}
	switch v := obj["isValid"].(type) {
	case bool:
		rep.IsValid = v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			rep.IsValid = b
		}
	}
	if v, ok := number(obj["confidence"]); ok {
		rep.Confidence = Clamp(v, MinConfidence, MaxConfidence)
	}
	return rep, nil
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func decodeObject(raw []byte) (map[string]any, error) {
	body := stripFences(raw)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrMalformed)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	return obj, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw []byte) []byte {
	b := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = b[3:]
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	} else {
		b = bytes.TrimPrefix(b, []byte("json"))
	}
	b = bytes.TrimSpace(b)
	b = bytes.TrimSuffix(b, []byte("```"))
	return bytes.TrimSpace(b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
