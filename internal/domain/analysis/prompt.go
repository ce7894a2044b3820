package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/kaushal/internal/domain/model"
)

// System prompts for the two collaborator calls.
const (
	AnalysisSystemPrompt  = "You are an expert sports performance analyst with computer vision capabilities. Analyze athletic movements with precision and provide actionable feedback."
	IntegritySystemPrompt = "You are a digital forensics expert. Detect signs of video manipulation, editing, or artificial enhancement."

	IntegrityPrompt = `Analyze this video for signs of digital manipulation, speed alteration, deepfakes, or other editing. ` +
		`Look for inconsistencies in lighting, motion blur, frame rates, or unnatural movements. ` +
		`Respond in JSON: {"isValid": boolean, "confidence": 0-1, "issues": []}`
)

const genericInstruction = "Analyze the athletic movement and provide performance insights."

var testInstructions = map[string]string{
	"sprint":        "Focus on running form, acceleration, stride length, and speed consistency. Measure approximate speed if possible.",
	"vertical_jump": "Analyze jump height, takeoff technique, body positioning, and landing form. Estimate jump height in centimeters.",
	"agility":       "Assess change of direction speed, body control, footwork, and movement efficiency.",
	"strength":      "Evaluate form, range of motion, control, and execution quality.",
	"endurance":     "Monitor consistency, pacing, form degradation, and cardiovascular efficiency.",
}

const responseSchema = `Respond in JSON format with:
{
  "performanceScore": 0-100,
  "metrics": [{"name": "", "value": 0, "unit": "", "confidence": 0-1}],
  "feedback": "detailed feedback text",
  "formAnalysis": {
    "overallForm": 0-100,
    "improvements": ["list of areas to improve"],
    "strengths": ["list of strengths observed"]
  },
  "detectedMovements": ["list of movements identified"],
  "riskFactors": ["potential injury risks or form issues"]
}`

// BuildPrompt renders the analysis prompt for a test type and optional athlete.
// A PromptHint on the test type replaces the built-in instruction.
func BuildPrompt(tt *model.TestType, athlete *model.Athlete) string {
	label := tt.Slug
	if label == "" {
		label = tt.Name
	}

	instruction := strings.TrimSpace(tt.PromptHint)
	if instruction == "" {
		if s, ok := testInstructions[tt.Slug]; ok {
			instruction = s
		} else {
			instruction = genericInstruction
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this %s performance video and provide detailed assessment. %s", label, instruction)
	if ctx := athleteContext(athlete); ctx != "" {
		b.WriteString(" ")
		b.WriteString(ctx)
	}
	b.WriteString("\n\n")
	b.WriteString(responseSchema)
	return b.String()
}

// athleteContext lists only the attributes that are known.
func athleteContext(a *model.Athlete) string {
	if a == nil {
		return ""
	}
	var parts []string
	if a.Age != nil {
		parts = append(parts, "age "+strconv.Itoa(*a.Age))
	}
	if a.HeightCm != nil {
		parts = append(parts, "height "+strconv.FormatFloat(*a.HeightCm, 'f', -1, 64)+"cm")
	}
	if a.WeightKg != nil {
		parts = append(parts, "weight "+strconv.FormatFloat(*a.WeightKg, 'f', -1, 64)+"kg")
	}
	if a.PrimarySport != "" {
		parts = append(parts, "sport: "+a.PrimarySport)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Consider athlete context: " + strings.Join(parts, ", ") + "."
}
