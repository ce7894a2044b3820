package analysis

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/kaushal/internal/domain/model"
)

func TestBuildPrompt(t *testing.T) {
	Convey("Given a known test type", t, func() {
		tt := &model.TestType{Slug: "vertical_jump", Name: "Vertical Jump"}

		Convey("When no athlete is supplied", func() {
			p := BuildPrompt(tt, nil)

			Convey("Then the prompt names the test and asks for the schema", func() {
				So(p, ShouldStartWith, "Analyze this vertical_jump performance video")
				So(p, ShouldContainSubstring, "Estimate jump height in centimeters.")
				So(p, ShouldContainSubstring, `"performanceScore": 0-100`)
				So(p, ShouldNotContainSubstring, "athlete context")
			})
		})

		Convey("When the athlete is partly known", func() {
			age := 17
			h := 182.5
			p := BuildPrompt(tt, &model.Athlete{Age: &age, HeightCm: &h, PrimarySport: "basketball"})

			Convey("Then only known attributes appear", func() {
				So(p, ShouldContainSubstring, "Consider athlete context: age 17, height 182.5cm, sport: basketball.")
				So(p, ShouldNotContainSubstring, "weight")
			})
		})
	})

	Convey("Given a custom test type", t, func() {
		Convey("Without a hint it falls back to the generic instruction", func() {
			p := BuildPrompt(&model.TestType{Name: "Plank Hold"}, nil)
			So(p, ShouldContainSubstring, "Analyze this Plank Hold performance video")
			So(p, ShouldContainSubstring, "Analyze the athletic movement and provide performance insights.")
		})

		Convey("A prompt hint replaces the instruction", func() {
			p := BuildPrompt(&model.TestType{Slug: "sprint", PromptHint: "Count the strides."}, nil)
			So(p, ShouldContainSubstring, "Count the strides.")
			So(strings.Contains(p, "stride length"), ShouldBeFalse)
		})
	})
}
