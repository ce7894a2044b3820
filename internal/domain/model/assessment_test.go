package model_test

import (
	"testing"

	model "github.com/okian/kaushal/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestStatus(t *testing.T) {
	convey.Convey("Given the assessment statuses", t, func() {
		convey.Convey("Then only completed and failed are terminal", func() {
			convey.So(model.StatusPending.IsTerminal(), convey.ShouldBeFalse)
			convey.So(model.StatusProcessing.IsTerminal(), convey.ShouldBeFalse)
			convey.So(model.StatusCompleted.IsTerminal(), convey.ShouldBeTrue)
			convey.So(model.StatusFailed.IsTerminal(), convey.ShouldBeTrue)
		})

		convey.Convey("Then ranks follow the lifecycle", func() {
			convey.So(model.StatusPending.Rank(), convey.ShouldBeLessThan, model.StatusProcessing.Rank())
			convey.So(model.StatusProcessing.Rank(), convey.ShouldBeLessThan, model.StatusCompleted.Rank())
			convey.So(model.StatusCompleted.Rank(), convey.ShouldEqual, model.StatusFailed.Rank())
			convey.So(model.Status("archived").Rank(), convey.ShouldEqual, -1)
		})

		convey.Convey("Then unknown statuses are invalid", func() {
			convey.So(model.Status("archived").Valid(), convey.ShouldBeFalse)
			convey.So(model.StatusFailed.Valid(), convey.ShouldBeTrue)
		})
	})
}

func TestCanTransition(t *testing.T) {
	convey.Convey("Given the transition graph", t, func() {
		convey.Convey("Forward edges are allowed", func() {
			convey.So(model.CanTransition(model.StatusPending, model.StatusProcessing), convey.ShouldBeTrue)
			convey.So(model.CanTransition(model.StatusProcessing, model.StatusCompleted), convey.ShouldBeTrue)
			convey.So(model.CanTransition(model.StatusProcessing, model.StatusFailed), convey.ShouldBeTrue)
		})

		convey.Convey("Skips, reversals and exits from terminal states are refused", func() {
			convey.So(model.CanTransition(model.StatusPending, model.StatusCompleted), convey.ShouldBeFalse)
			convey.So(model.CanTransition(model.StatusProcessing, model.StatusPending), convey.ShouldBeFalse)
			convey.So(model.CanTransition(model.StatusCompleted, model.StatusFailed), convey.ShouldBeFalse)
			convey.So(model.CanTransition(model.StatusFailed, model.StatusProcessing), convey.ShouldBeFalse)
		})
	})
}
