package tui

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/okian/kaushal/internal/domain/types"
)

// PickTestType asks which test to record and returns its id.
func PickTestType(tts []types.TestType) (string, error) {
	if len(tts) == 0 {
		return "", fmt.Errorf("no test types available")
	}
	var id string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Test").
				Description("Choose the assessment to record").
				Options(testTypeOptions(tts)...).
				Value(&id),
		),
	).WithTheme(Theme())
	if err := form.Run(); err != nil {
		return "", err
	}
	return id, nil
}

func testTypeOptions(tts []types.TestType) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(tts))
	for _, tt := range tts {
		label := tt.Name
		if tt.Category != "" {
			label += " (" + tt.Category + ")"
		}
		opts = append(opts, huh.NewOption(label, tt.ID))
	}
	return opts
}
