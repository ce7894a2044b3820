package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/kaushal/internal/domain/model"
	types "github.com/okian/kaushal/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFromAssessment(t *testing.T) {
	Convey("Given a completed assessment with one metric", t, func() {
		score := 87.3
		a := &model.Assessment{
			ID:                "a-1",
			AthleteID:         "ath-1",
			TestTypeID:        "tt-1",
			Status:            model.StatusCompleted,
			VideoKey:          "clips/a-1.webm",
			PerformanceScore:  &score,
			AIAnalysisResults: json.RawMessage(`{"performanceScore":87.3}`),
			CreatedAt:         time.Unix(0, 0).UTC(),
		}
		metrics := []model.PerformanceMetric{{Name: "speed", Value: 7.1, Unit: "m/s", Confidence: 0.92}}

		Convey("When converting to the wire shape", func() {
			out := types.FromAssessment(a, metrics)
			raw, err := json.Marshal(out)
			So(err, ShouldBeNil)

			Convey("Then fields use the API names", func() {
				var m map[string]any
				So(json.Unmarshal(raw, &m), ShouldBeNil)
				So(m["status"], ShouldEqual, "completed")
				So(m["performanceScore"], ShouldEqual, 87.3)
				So(m["videoUrl"], ShouldEqual, "/assessments/a-1/video")
				So(m["aiAnalysisResults"], ShouldNotBeNil)
				So(len(m["metrics"].([]any)), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a pending assessment", t, func() {
		a := &model.Assessment{ID: "a-2", Status: model.StatusPending}

		Convey("Then optional fields are omitted and metrics is an empty list", func() {
			raw, err := json.Marshal(types.FromAssessment(a, nil))
			So(err, ShouldBeNil)
			So(string(raw), ShouldNotContainSubstring, "performanceScore")
			So(string(raw), ShouldNotContainSubstring, "aiAnalysisResults")
			So(string(raw), ShouldContainSubstring, `"metrics":[]`)
		})
	})
}
