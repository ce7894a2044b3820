package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
)

// scripted returns one status per call and repeats the last one.
type scripted struct {
	mu    sync.Mutex
	steps []any
	calls int
}

func (s *scripted) GetAssessment(_ context.Context, id string) (types.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	switch v := s.steps[i].(type) {
	case error:
		return types.Assessment{}, v
	default:
		return types.Assessment{ID: id, Status: v.(model.Status)}, nil
	}
}

func TestPollerWatch(t *testing.T) {
	Convey("Given a poller with a short interval", t, func() {
		ctx := context.Background()
		fast := WithInterval(5 * time.Millisecond)

		Convey("It stops at the first terminal status", func() {
			g := &scripted{steps: []any{model.StatusProcessing, model.StatusProcessing, model.StatusCompleted, model.StatusCompleted}}
			var updates []model.Status
			a, err := New(g, fast).Watch(ctx, "a-1", func(a types.Assessment) { updates = append(updates, a.Status) })
			So(err, ShouldBeNil)
			So(a.Status, ShouldEqual, model.StatusCompleted)
			So(g.calls, ShouldEqual, 3)
			So(updates, ShouldResemble, []model.Status{model.StatusProcessing, model.StatusCompleted})
		})

		Convey("A terminal first read needs no further polling", func() {
			g := &scripted{steps: []any{model.StatusFailed}}
			a, err := New(g, fast).Watch(ctx, "a-1", nil)
			So(err, ShouldBeNil)
			So(a.Status, ShouldEqual, model.StatusFailed)
			So(g.calls, ShouldEqual, 1)
		})

		Convey("A pending assessment is not polled", func() {
			g := &scripted{steps: []any{model.StatusPending}}
			_, err := New(g, fast).Watch(ctx, "a-1", nil)
			So(errors.Is(err, ErrNotProcessing), ShouldBeTrue)
			So(g.calls, ShouldEqual, 1)
		})

		Convey("A backwards status is reported", func() {
			g := &scripted{steps: []any{model.StatusProcessing, model.StatusPending}}
			a, err := New(g, fast).Watch(ctx, "a-1", nil)
			So(errors.Is(err, ErrStatusRegressed), ShouldBeTrue)
			So(a.Status, ShouldEqual, model.StatusProcessing)
		})

		Convey("Transient read errors are tolerated", func() {
			boom := errors.New("connection reset")
			g := &scripted{steps: []any{model.StatusProcessing, boom, model.StatusCompleted}}
			a, err := New(g, fast).Watch(ctx, "a-1", nil)
			So(err, ShouldBeNil)
			So(a.Status, ShouldEqual, model.StatusCompleted)
		})

		Convey("Repeated read errors end the watch", func() {
			boom := errors.New("connection refused")
			g := &scripted{steps: []any{boom}}
			_, err := New(g, fast, WithMaxErrors(2)).Watch(ctx, "a-1", nil)
			So(errors.Is(err, boom), ShouldBeTrue)
			So(g.calls, ShouldEqual, 2)
		})

		Convey("Cancelling the context stops the watch", func() {
			g := &scripted{steps: []any{model.StatusProcessing}}
			cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()
			a, err := New(g, fast).Watch(cctx, "a-1", nil)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(a.Status, ShouldEqual, model.StatusProcessing)
		})
	})
}
