package service_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/kaushal/internal/adapters/collaborator"
	service "github.com/okian/kaushal/internal/app"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func upload(id string, body []byte, wait bool) service.Upload {
	return service.Upload{
		AssessmentID: id,
		Filename:     "../../etc/my clip.webm",
		ContentType:  "video/webm; codecs=vp8",
		Body:         bytes.NewReader(body),
		Wait:         wait,
	}
}

// waitTerminal polls until the assessment leaves processing.
func waitTerminal(h *harness, id string) types.Assessment {
	deadline := time.Now().Add(5 * time.Second)
	for {
		a, err := h.svc.GetAssessment(context.Background(), id)
		if err == nil && a.Status != model.StatusPending && a.Status != model.StatusProcessing {
			return a
		}
		if time.Now().After(deadline) {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func clipCount(root string) int {
	entries, _ := os.ReadDir(root)
	return len(entries)
}

func TestServiceIngest(t *testing.T) {
	Convey("Given a started service and a pending assessment", t, func() {
		h := newHarness(t, service.WithMaxUploadBytes(1024))
		h.start(t)
		ctx := context.Background()
		a := h.pendingAssessment(t)

		Convey("When a clip is uploaded and the caller waits", func() {
			res, err := h.svc.Ingest(ctx, upload(a.ID, []byte("twelve second clip"), true))

			Convey("Then the analysis completes within bounds", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldNotBeNil)
				So(res.Outcome.Status, ShouldEqual, model.StatusCompleted)
				So(res.Assessment.Status, ShouldEqual, model.StatusCompleted)
				So(*res.Assessment.PerformanceScore, ShouldBeBetweenOrEqual, 0, 100)
				So(res.Assessment.Metrics, ShouldHaveLength, 1)
				So(res.Assessment.Metrics[0].Confidence, ShouldBeBetweenOrEqual, 0, 1)
				So(res.Assessment.VideoURL, ShouldEqual, "/assessments/"+a.ID+"/video")
			})

			Convey("Then the stored clip has a sanitized server name", func() {
				v, err := h.svc.OpenVideo(ctx, a.ID)
				So(err, ShouldBeNil)
				defer v.Body.Close()
				So(v.Name, ShouldEndWith, "-my_clip.webm")
				So(strings.Contains(v.Name, ".."), ShouldBeFalse)
				So(v.Size, ShouldEqual, int64(len("twelve second clip")))
			})

			Convey("Then a second upload is refused", func() {
				_, err := h.svc.Ingest(ctx, upload(a.ID, []byte("again"), false))
				So(errors.Is(err, service.ErrNotPending), ShouldBeTrue)
			})
		})

		Convey("When a clip is uploaded without waiting", func() {
			res, err := h.svc.Ingest(ctx, upload(a.ID, []byte("async clip"), false))

			Convey("Then processing is visible immediately and the run finishes later", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldBeNil)
				So(res.Assessment.Status, ShouldNotEqual, model.StatusPending)
				So(waitTerminal(h, a.ID).Status, ShouldEqual, model.StatusCompleted)
			})
		})

		Convey("When the collaborator reports a score above range", func() {
			body := append([]byte("clip "), collaborator.MarkerOutOfRange...)
			res, err := h.svc.Ingest(ctx, upload(a.ID, body, true))

			Convey("Then 100 is stored instead", func() {
				So(err, ShouldBeNil)
				So(*res.Assessment.PerformanceScore, ShouldEqual, 100)
			})
		})

		Convey("When the collaborator fails", func() {
			res, err := h.svc.Ingest(ctx, upload(a.ID, collaborator.MarkerError, true))

			Convey("Then the assessment fails with analysis_error and no metrics", func() {
				So(err, ShouldBeNil)
				So(res.Outcome.Reason, ShouldEqual, model.ReasonAnalysisError)
				So(res.Assessment.Status, ShouldEqual, model.StatusFailed)
				So(res.Assessment.FailureReason, ShouldEqual, "analysis_error")
				So(res.Assessment.PerformanceScore, ShouldBeNil)
				So(res.Assessment.Metrics, ShouldBeEmpty)
				So(string(res.Assessment.AIAnalysisResults), ShouldContainSubstring, "analysis_error")
			})
		})

		Convey("When the content type is not video", func() {
			up := upload(a.ID, []byte("hello"), true)
			up.Filename = "video.mp4"
			up.ContentType = "text/plain"
			_, err := h.svc.Ingest(ctx, up)

			Convey("Then it is rejected and the assessment stays pending", func() {
				So(errors.Is(err, service.ErrUnsupportedMedia), ShouldBeTrue)
				got, _ := h.svc.GetAssessment(ctx, a.ID)
				So(got.Status, ShouldEqual, model.StatusPending)
				So(clipCount(h.clipsRoot), ShouldEqual, 0)
			})
		})

		Convey("When the clip exceeds the size limit", func() {
			_, err := h.svc.Ingest(ctx, upload(a.ID, bytes.Repeat([]byte("x"), 2048), true))

			Convey("Then it is rejected, nothing is kept and the assessment stays pending", func() {
				So(errors.Is(err, service.ErrTooLarge), ShouldBeTrue)
				got, _ := h.svc.GetAssessment(ctx, a.ID)
				So(got.Status, ShouldEqual, model.StatusPending)
				So(clipCount(h.clipsRoot), ShouldEqual, 0)
			})
		})

		Convey("When the clip is empty", func() {
			_, err := h.svc.Ingest(ctx, upload(a.ID, nil, true))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
				So(clipCount(h.clipsRoot), ShouldEqual, 0)
			})
		})

		Convey("When the assessment does not exist", func() {
			_, err := h.svc.Ingest(ctx, upload("missing", []byte("clip"), true))

			Convey("Then it reports not found", func() {
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestServiceConcurrentReupload(t *testing.T) {
	Convey("Given one pending assessment and many racing uploads", t, func() {
		h := newHarness(t)
		h.start(t)
		ctx := context.Background()
		a := h.pendingAssessment(t)

		const racers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
			refused  int
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.svc.Ingest(ctx, upload(a.ID, []byte("same clip"), true))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted++
				case errors.Is(err, service.ErrUploadInFlight), errors.Is(err, service.ErrNotPending):
					refused++
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one is analyzed and metrics are not duplicated", func() {
			So(accepted, ShouldEqual, 1)
			So(refused, ShouldEqual, racers-1)
			got := waitTerminal(h, a.ID)
			So(got.Status, ShouldEqual, model.StatusCompleted)
			So(got.Metrics, ShouldHaveLength, 1)
			So(clipCount(h.clipsRoot), ShouldEqual, 1)
		})
	})
}

func TestServiceWatchdog(t *testing.T) {
	Convey("Given an assessment stuck in processing", t, func() {
		later := time.Now().Add(time.Hour)
		h := newHarness(t,
			service.WithAnalysisTimeout(300*time.Millisecond),
			service.WithWatchdog(0, 5*time.Minute),
			service.WithClock(func() time.Time { return later }),
		)
		h.start(t)
		ctx := context.Background()
		a := h.pendingAssessment(t)

		_, err := h.svc.Ingest(ctx, upload(a.ID, collaborator.MarkerHang, false))
		So(err, ShouldBeNil)

		Convey("When the sweep runs past the stale age", func() {
			n, err := h.svc.SweepStale(ctx)

			Convey("Then it fails the assessment and the late run cannot overwrite it", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				got := waitTerminal(h, a.ID)
				So(got.Status, ShouldEqual, model.StatusFailed)
				So(got.FailureReason, ShouldEqual, "stale_processing")

				time.Sleep(500 * time.Millisecond)
				got, _ = h.svc.GetAssessment(ctx, a.ID)
				So(got.FailureReason, ShouldEqual, "stale_processing")
			})

			Convey("Then a second sweep finds nothing", func() {
				n, err := h.svc.SweepStale(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})
}

func TestServiceNotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		h := newHarness(t)

		Convey("Then ingest is refused", func() {
			_, err := h.svc.Ingest(context.Background(), upload("a", []byte("clip"), false))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}
